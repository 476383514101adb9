package config

import (
	"os"

	"github.com/drone/envsubst"
)

// ExpandEnvVars expands environment variable references in the input string.
// Supports ${VAR}, $VAR and ${VAR:-default}. Unset variables expand to the
// empty string unless a default is given.
func ExpandEnvVars(input string) (string, error) {
	return envsubst.Eval(input, func(name string) string {
		val, _ := os.LookupEnv(name)
		return val
	})
}

// ExpandEnvVarsBytes is a convenience wrapper for byte slices.
func ExpandEnvVarsBytes(input []byte) ([]byte, error) {
	out, err := ExpandEnvVars(string(input))
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
