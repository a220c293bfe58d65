package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParameterType selects the SSM storage type for a collected value.
type ParameterType int

const (
	// ParamSecureString is encrypted at rest; all credentials use it.
	ParamSecureString ParameterType = iota
	// ParamString is plaintext, for values like the publishable key.
	ParamString
)

// BootstrapStep is one parameter the operator is walked through.
type BootstrapStep struct {
	// HumanLabel names the parameter in prompts and the summary,
	// e.g. "Stripe Secret Key".
	HumanLabel string

	// SSMCategoryKey is the path portion under the environment prefix:
	// "database/url" becomes "/{env}/cprtrainer/database/url".
	SSMCategoryKey string

	ParamType ParameterType

	// Prompt is the instruction text shown before reading input.
	Prompt string

	// ValidateFn checks the entered value, against the live service where
	// possible. Nil accepts any input.
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// IsSecret reads the value without terminal echo.
	IsSecret bool
}

// maxRetries bounds how often a failing value can be re-entered before the
// step aborts the run.
const maxRetries = 5

// errSkipped marks a step the operator chose to leave unset.
var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory lists, in prompt order, every secret the payment service
// resolves from SSM at startup. The validator is injected so tests can swap
// in offline checks.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			ParamType:      ParamSecureString,
			Prompt: `1. Open your PostgreSQL provider's dashboard.
   2. Copy the pooled connection string for the payments database.
   3. Paste the full postgres://... string here:`,
			ValidateFn: v.ValidateDatabaseURL,
			IsSecret:   true,
		},
		{
			HumanLabel:     "Stripe Secret Key",
			SSMCategoryKey: "billing/stripe_secret_key",
			ParamType:      ParamSecureString,
			Prompt: `1. Go to Stripe Dashboard > Developers > API Keys.
   2. Copy the Secret Key (sk_...).
   3. Paste it here:`,
			ValidateFn: v.ValidateStripeKey,
			IsSecret:   true,
		},
		{
			HumanLabel:     "Stripe Webhook Signing Secret",
			SSMCategoryKey: "billing/stripe_webhook_secret",
			ParamType:      ParamSecureString,
			Prompt: `1. Go to Stripe Dashboard > Developers > Webhooks.
   2. Create (or open) the endpoint for POST /webhooks/payment.
   3. Reveal the Signing Secret (whsec_...) and paste it here:`,
			ValidateFn: v.ValidateWebhookSecret,
			IsSecret:   true,
		},
		{
			HumanLabel:     "Stripe Publishable Key",
			SSMCategoryKey: "billing/stripe_publishable_key",
			ParamType:      ParamString,
			Prompt:         `Now paste the Stripe Publishable Key (pk_...):`,
			ValidateFn:     v.ValidatePublishableKey,
			IsSecret:       false,
		},
	}
}

// BootstrapRunner drives the prompt loop. Separated from main so tests can
// inject readers, writers, and a mock SSM client.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// scanner is shared across all reads; a second bufio.Scanner on the
	// same reader would swallow buffered-ahead input.
	scanner *bufio.Scanner

	// inventoryOverride substitutes the step list in tests. Nil means
	// BuildInventory.
	inventoryOverride []BootstrapStep
}

// NewBootstrapRunner creates a BootstrapRunner with production dependencies.
func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

// stepAction is what a step ended up doing to its parameter.
type stepAction string

const (
	actionWritten     stepAction = "written"
	actionSkipped     stepAction = "skipped"
	actionOverwritten stepAction = "overwritten"
)

// stepResult pairs a step's label with the action taken, for the summary.
type stepResult struct {
	Label  string
	Action stepAction
}

// Run walks the inventory in order: probe SSM, prompt, validate, write.
// It finishes by printing a summary of what each step did.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventoryOverride
	if inventory == nil {
		inventory = BuildInventory(r.Validator)
	}

	results := make([]stepResult, 0, len(inventory))
	for i, step := range inventory {
		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		action, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, stepResult{Label: step.HumanLabel, Action: action})
	}

	r.printSummary(results)
	return nil
}

// processStep handles one parameter end to end: existence probe, skip or
// overwrite choice, input, validation, SSM write.
func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepAction, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)

	// Probe before prompting so repeated runs stay idempotent.
	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("checking existence of %s: %w", path, err)
	}
	if exists {
		choice, err := r.resolveExisting(path)
		if err != nil {
			return "", err
		}
		if choice == "skip" {
			return actionSkipped, nil
		}
	}

	value, err := r.promptAndValidate(ctx, step)
	switch {
	case errors.Is(err, errSkipped):
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		return actionSkipped, nil
	case err != nil:
		return "", err
	}

	if step.ParamType == ParamSecureString {
		err = r.SSM.PutSecret(ctx, path, value, exists)
	} else {
		// PutString always uses overwrite=true internally.
		err = r.SSM.PutString(ctx, path, value)
	}
	if err != nil {
		return "", fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}

	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	if exists {
		return actionOverwritten, nil
	}
	return actionWritten, nil
}

// resolveExisting asks the operator what to do with a parameter that is
// already set. Returns "skip" or "overwrite".
func (r *BootstrapRunner) resolveExisting(path string) (string, error) {
	fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)

	choice, err := r.promptChoice("  [S]kip or [O]verwrite? ", "skip", "overwrite")
	if err != nil {
		return "", fmt.Errorf("reading skip/overwrite choice: %w", err)
	}
	if choice == "skip" {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
	}
	return choice, nil
}

// promptAndValidate reads a value for the step, masking secrets, and retries
// failed validation up to maxRetries times. Empty input offers a skip.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		input, err := r.readValue(step)
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		if input == "" {
			choice, choiceErr := r.promptChoice(
				"  No input received. [S]kip this parameter or [R]etry? ", "skip", "retry")
			if choiceErr != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, choiceErr)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			// Re-prompt without consuming an attempt.
			attempt--
			continue
		}

		if step.ValidateFn == nil {
			return input, nil
		}
		vr := step.ValidateFn(ctx, input)
		if vr.Valid {
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
			return input, nil
		}
		fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
		if attempt < maxRetries {
			fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
		}
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

// readValue reads one line for the step, masking secret input, and
// acknowledges secrets by length only.
func (r *BootstrapRunner) readValue(step BootstrapStep) (string, error) {
	var input string
	var err error
	if step.IsSecret {
		input, err = r.readSecretInput("  > ")
	} else {
		input, err = r.readInput("  > ")
	}
	if err != nil {
		return "", err
	}

	input = strings.TrimSpace(input)
	if step.IsSecret && input != "" {
		fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
	}
	return input, nil
}

// scanLine returns io.EOF when input is exhausted.
func (r *BootstrapRunner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput disables terminal echo while reading. Piped input, as in
// tests, falls back to plain line reading.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(password), nil
	}

	return r.scanLine()
}

// promptChoice repeats question until the operator answers with one of the
// given options, accepting the full word or its first letter.
func (r *BootstrapRunner) promptChoice(question string, options ...string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, question)

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}

		answer := strings.TrimSpace(strings.ToLower(line))
		for _, opt := range options {
			if answer == opt || answer == opt[:1] {
				return opt, nil
			}
		}
		fmt.Fprintf(r.Stderr, "  Please answer %s.\n", strings.Join(options, " or "))
	}
}

// printSummary lists what happened to each parameter.
func (r *BootstrapRunner) printSummary(results []stepResult) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(r.Stderr, "\n%s\n  Bootstrap Summary\n%s\n", rule, rule)

	counts := map[stepAction]int{}
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-13s %s\n", "["+strings.ToUpper(string(res.Action))+"]", res.Label)
	}

	fmt.Fprintf(r.Stderr, "%s\n", strings.Repeat("-", 60))
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Skipped: %d\n",
		counts[actionWritten], counts[actionOverwritten], counts[actionSkipped])
	fmt.Fprintf(r.Stderr, "%s\n\n", rule)
	fmt.Fprintf(r.Stderr, "  Next step: deploy the service, then point the Stripe webhook\n")
	fmt.Fprintf(r.Stderr, "  endpoint at POST /webhooks/payment.\n\n")
}
