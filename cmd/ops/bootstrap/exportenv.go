package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

// ExportEnvConfig holds the inputs for ExportEnvFile.
type ExportEnvConfig struct {
	// OutputPath is where the .env file is written.
	OutputPath string

	// Environment is the bootstrap environment whose SSM parameters are read.
	Environment string

	// SSM is the manager used to read parameters back (with decryption).
	SSM *SSMManager

	// Stderr receives progress output.
	Stderr io.Writer

	// IncludeLocalDefaults adds the non-secret local development settings
	// (APP_ENV=local, LocalStack endpoints) alongside the exported secrets.
	IncludeLocalDefaults bool
}

// exportedParams maps each SSM category/key to the environment variable the
// config loader reads it from. These mirror the envconfig tags on the Config
// struct.
var exportedParams = []struct {
	CategoryKey string
	EnvVar      string
	Decrypt     bool
}{
	{"database/url", "DATABASE_URL", true},
	{"billing/stripe_secret_key", "STRIPE_SECRET_KEY", true},
	{"billing/stripe_webhook_secret", "STRIPE_WEBHOOK_SECRET", true},
	{"billing/stripe_publishable_key", "STRIPE_PUBLISHABLE_KEY", false},
}

// localDefaults are the non-secret settings a local development environment
// needs. The SQS and AWS endpoint values assume LocalStack on port 4566.
var localDefaults = map[string]string{
	"APP_ENV":          "local",
	"PORT":             "8080",
	"API_EXTERNAL_URL": "http://localhost:8080",
	"APP_BASE_URL":     "http://localhost:3000",
	"AWS_REGION":       "us-east-1",
	"AWS_ENDPOINT_URL": "http://localhost:4566",
	"SQS_RECONCILE":    "http://localhost:4566/000000000000/payment-reconcile-queue",
}

// ExportEnvFile reads the bootstrap parameters back from SSM (decrypting
// SecureStrings) and writes them to a .env file for local development. The
// file is written with 0600 permissions since it contains plaintext secrets.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	if cfg.SSM == nil {
		return fmt.Errorf("SSM manager is required for export")
	}
	if cfg.OutputPath == "" {
		return fmt.Errorf("output path must not be empty")
	}

	envMap := make(map[string]string)

	if cfg.IncludeLocalDefaults {
		for key, value := range localDefaults {
			envMap[key] = value
		}
	}

	for _, param := range exportedParams {
		path := cfg.SSM.SSMPath(param.CategoryKey)

		value, err := cfg.SSM.GetParameterValue(ctx, path, param.Decrypt)
		if err != nil {
			return fmt.Errorf("reading %s for export: %w", path, err)
		}

		envMap[param.EnvVar] = value
		fmt.Fprintf(cfg.Stderr, "  Exported %s\n", param.EnvVar)
	}

	content, err := godotenv.Marshal(envMap)
	if err != nil {
		return fmt.Errorf("serializing .env content: %w", err)
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}

	fmt.Fprintf(cfg.Stderr, "  Wrote %d variables to %s\n", len(envMap), cfg.OutputPath)
	return nil
}
