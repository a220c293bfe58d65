package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmMaxBatchSize is the SSM GetParameters limit per call.
const ssmMaxBatchSize = 10

// ssmClient is the subset of the SSM SDK used here, extracted so tests can
// substitute a mock.
type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider implements SecretProvider over AWS SSM Parameter Store, where
// deployed environments keep the Stripe credentials and database DSN as
// SecureString parameters. Parameters are expected in the same region the
// service runs in.
type SSMProvider struct {
	region string

	// client is created lazily on first use when not injected.
	client ssmClient
}

// NewSSMProvider creates a provider reading from the given AWS region.
func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{
		region: region,
	}
}

// newSSMProviderWithClient injects a client for tests.
func newSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{
		region: region,
		client: client,
	}
}

func (p *SSMProvider) ensureClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.region),
	)
	if err != nil {
		return fmt.Errorf("loading AWS config for SSM (region=%s): %w", p.region, err)
	}

	p.client = ssm.NewFromConfig(cfg)
	return nil
}

// GetParametersBatch fetches and decrypts parameter values in batches of ten,
// checking the context between batches so a startup deadline cuts the fetch
// short cleanly. A parameter SSM reports as invalid fails the whole call:
// every secret the loader asks for is one the service cannot run without.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return make(map[string]string), nil
	}

	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	result := make(map[string]string, len(keys))
	for i := 0; i < len(keys); i += ssmMaxBatchSize {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during SSM parameter retrieval: %w", ctx.Err())
		default:
		}

		end := min(i+ssmMaxBatchSize, len(keys))
		if err := p.fetchBatch(ctx, keys[i:end], result); err != nil {
			return nil, fmt.Errorf("SSM batch %d-%d of %d: %w", i, end-1, len(keys), err)
		}
	}

	return result, nil
}

func (p *SSMProvider) fetchBatch(ctx context.Context, batch []string, result map[string]string) error {
	output, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          batch,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("GetParameters: %w", err)
	}

	for _, param := range output.Parameters {
		if param.Name != nil && param.Value != nil {
			result[*param.Name] = *param.Value
		}
	}

	if len(output.InvalidParameters) > 0 {
		return fmt.Errorf("parameters not found: %v", output.InvalidParameters)
	}
	return nil
}
