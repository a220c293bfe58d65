package external

import (
	"log/slog"
	"net/http"
	"time"

	"cprtrainer/internal/config"
)

// ---------------------------------------------------------------------------
// Client Registry
//
// Central factory that instantiates the external service clients based on
// configuration. In local mode, returns stub implementations that log
// actions without requiring real credentials. Otherwise, returns real
// client implementations with strict timeouts.
// ---------------------------------------------------------------------------

// ClientRegistry holds the external service client interfaces. It is the
// single point of access for the rest of the application to interact with the
// payment provider.
type ClientRegistry struct {
	Gateway  PaymentGateway
	Verifier WebhookVerifier
}

// NewClientRegistry initializes the external service clients. When
// cfg.Environment is "local", the registry is populated with stub
// implementations that log actions without requiring real credentials.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Environment == "local" {
		logger.Info("initializing external clients in STUB mode",
			"environment", cfg.Environment,
		)
		return newStubRegistry(logger)
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
	)
	return newProductionRegistry(cfg, logger)
}

// newStubRegistry creates a ClientRegistry populated entirely with stub
// implementations. This allows the application to boot locally without
// any external service credentials.
func newStubRegistry(logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")

	return &ClientRegistry{
		Gateway:  NewStubPaymentGateway(stubLogger),
		Verifier: NewStubWebhookVerifier(stubLogger),
	}
}

// newProductionRegistry creates a ClientRegistry with real client
// implementations configured with strict timeouts and resilience patterns.
func newProductionRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	stripeHTTPClient := &http.Client{Timeout: 20 * time.Second}

	return &ClientRegistry{
		Gateway: NewStripeClient(stripeHTTPClient, StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger.With("client", "stripe"),
		}),
		Verifier: &StripeVerifier{},
	}
}
