// Package main implements the one-time setup CLI for the CPR Trainer
// payment service. It walks an operator through the external secrets the
// service resolves at startup (database URL, Stripe keys) and stores them
// in AWS SSM Parameter Store under /{environment}/cprtrainer/{category}/{key}.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=dev --export-env
//	go run ./cmd/ops/bootstrap --env=prod --profile=cprtrainer-prod --region=us-east-1
//
// Every value is validated against the live provider where possible before
// it is written. With --export-env the tool reads the parameters back and
// emits a .env file for local development.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// bootstrapFlags carries the parsed command line.
type bootstrapFlags struct {
	env           string
	profile       string
	region        string
	exportEnv     bool
	exportEnvPath string
}

// BootstrapContext is the session state established before any parameter is
// touched: the target environment plus the verified AWS identity.
type BootstrapContext struct {
	Environment string
	AWSProfile  string
	AWSRegion   string

	// AccountID and CallerARN come from STS GetCallerIdentity.
	AccountID string
	CallerARN string

	// AWSConfig is reused by the SSM phase.
	AWSConfig aws.Config

	Logger *slog.Logger
}

func main() {
	flags := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, flags, logger); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() bootstrapFlags {
	var flags bootstrapFlags
	flag.StringVar(&flags.env, "env", "", "Target environment (dev/staging/prod) [required]")
	flag.StringVar(&flags.profile, "profile", "", "AWS CLI profile (default: uses default credential chain)")
	flag.StringVar(&flags.region, "region", "us-east-1", "AWS region")
	flag.BoolVar(&flags.exportEnv, "export-env", false, "After bootstrap, export SSM parameters to a .env file for local development")
	flag.StringVar(&flags.exportEnvPath, "export-env-path", ".env", "Path for the exported .env file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "CPR Trainer Bootstrap Tool\n\n")
		fmt.Fprintf(os.Stderr, "Collects the payment service secrets and writes them to AWS SSM\n")
		fmt.Fprintf(os.Stderr, "Parameter Store before the first deployment.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  bootstrap --env=dev [--profile=NAME] [--region=REGION] [--export-env]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flags.env == "" {
		fmt.Fprintf(os.Stderr, "error: --env is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if !validEnvironments[flags.env] {
		fmt.Fprintf(os.Stderr, "error: invalid environment %q (must be dev, staging, or prod)\n", flags.env)
		os.Exit(1)
	}
	return flags
}

func run(ctx context.Context, flags bootstrapFlags, logger *slog.Logger) error {
	bctx, err := initializeSession(ctx, flags, logger)
	if err != nil {
		return err
	}

	// Production runs require typing out the confirmation.
	if bctx.Environment == "prod" && !confirmProduction(bctx) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return nil
	}

	printBanner(bctx)

	runner := NewBootstrapRunner(bctx)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	logger.Info("bootstrap completed successfully",
		"env", bctx.Environment,
		"account", bctx.AccountID,
		"region", bctx.AWSRegion,
	)

	if !flags.exportEnv {
		return nil
	}

	logger.Info("exporting SSM parameters to .env file", "path", flags.exportEnvPath)
	err = ExportEnvFile(ctx, ExportEnvConfig{
		OutputPath:           flags.exportEnvPath,
		Environment:          bctx.Environment,
		SSM:                  runner.SSM,
		Stderr:               os.Stderr,
		IncludeLocalDefaults: true,
	})
	if err != nil {
		return fmt.Errorf("exporting .env file: %w", err)
	}
	logger.Info(".env file exported successfully", "path", flags.exportEnvPath)
	return nil
}

// initializeSession loads the AWS SDK config and verifies the active
// identity via STS before anything is written.
func initializeSession(ctx context.Context, flags bootstrapFlags, logger *slog.Logger) (*BootstrapContext, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if flags.region != "" {
		opts = append(opts, awsconfig.WithRegion(flags.region))
	}
	if flags.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(flags.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	identityCtx, identityCancel := context.WithTimeout(ctx, 10*time.Second)
	defer identityCancel()

	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (STS GetCallerIdentity): %w\n"+
			"  Check that your AWS credentials are configured correctly.\n"+
			"  Profile: %q, Region: %q", err, flags.profile, flags.region)
	}

	bctx := &BootstrapContext{
		Environment: flags.env,
		AWSProfile:  flags.profile,
		AWSRegion:   flags.region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
		Logger:      logger,
	}

	logger.Info("AWS identity verified",
		"account_id", bctx.AccountID,
		"arn", bctx.CallerARN,
		"region", bctx.AWSRegion,
	)
	return bctx, nil
}

// confirmProduction returns true only when the operator types "yes".
func confirmProduction(bctx *BootstrapContext) bool {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(os.Stderr, "\n%s\n  WARNING: You are targeting the PRODUCTION environment\n%s\n", rule, rule)
	fmt.Fprintf(os.Stderr, "  Account: %s\n", bctx.AccountID)
	fmt.Fprintf(os.Stderr, "  Region:  %s\n", bctx.AWSRegion)
	fmt.Fprintf(os.Stderr, "  ARN:     %s\n", bctx.CallerARN)
	fmt.Fprintf(os.Stderr, "%s\n\n", rule)
	fmt.Fprint(os.Stderr, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}

func printBanner(bctx *BootstrapContext) {
	rule := strings.Repeat("-", 60)
	fmt.Fprintf(os.Stderr, "\n%s\n  CPR Trainer Payments Bootstrap\n%s\n", rule, rule)
	fmt.Fprintf(os.Stderr, "  Environment:  %s\n", bctx.Environment)
	fmt.Fprintf(os.Stderr, "  AWS Account:  %s\n", bctx.AccountID)
	fmt.Fprintf(os.Stderr, "  AWS Region:   %s\n", bctx.AWSRegion)
	fmt.Fprintf(os.Stderr, "  Identity:     %s\n", bctx.CallerARN)
	if bctx.AWSProfile != "" {
		fmt.Fprintf(os.Stderr, "  Profile:      %s\n", bctx.AWSProfile)
	}
	fmt.Fprintf(os.Stderr, "  SSM Prefix:   /%s/cprtrainer/\n", bctx.Environment)
	fmt.Fprintf(os.Stderr, "%s\n\n", rule)
}
