package config

import (
	"github.com/caarlos0/env/v11"
)

// Env holds settings taken from the environment.
type Env struct {
	// Verbose enables debug logging.
	Verbose bool `env:"STRMERGE_VERBOSE"`
	// Config is the project file path, overriding lookup in the root.
	Config string `env:"STRMERGE_CONFIG"`
	// Genstrings and IBTool locate the extraction tools.
	Genstrings string `env:"STRMERGE_GENSTRINGS" envDefault:"genstrings"`
	IBTool     string `env:"STRMERGE_IBTOOL" envDefault:"ibtool"`
	// Encoding is the output encoding used when neither the project file
	// nor a flag sets one.
	Encoding string `env:"STRMERGE_ENCODING"`
	// NoColor disables colored log output when set to any value.
	NoColor string `env:"NO_COLOR"`
}

// LoadEnv parses the environment.
func LoadEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return e, &Error{Msg: "invalid environment", Err: err}
	}
	return e, nil
}
