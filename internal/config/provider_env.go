package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider over OS environment variables.
// Local development sets STRIPE_SECRET_KEY and friends directly, or via a
// .env file loaded at startup, and never touches SSM.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Keys missing from
// the environment are omitted from the result rather than reported as errors;
// the loader decides which secrets are mandatory.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
