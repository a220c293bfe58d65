package config

import "context"

// SecretProvider resolves the service's secrets: the Stripe API key, the
// webhook signing secret, and the database DSN. Production reads them from
// AWS SSM Parameter Store; local development reads plain environment
// variables. The interface keeps the loader testable against either.
type SecretProvider interface {
	// GetParametersBatch resolves the given keys (SSM parameter paths or
	// environment variable names) and returns plaintext values for the ones
	// it found. Implementations own their batching and retry behavior.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
