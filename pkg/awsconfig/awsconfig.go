package awsconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
)

// Load resolves the shared AWS configuration. Static keys win over the default chain.
func Load(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return aws.Config{}, fmt.Errorf("aws region is required")
	}

	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if cfg.HasStaticCredentials() {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	loaded, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading aws config: %w", err)
	}
	return loaded, nil
}

// Endpoint returns the override endpoint or nil when the regional default applies.
func Endpoint(cfg config.AWSConfig) *string {
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		return aws.String(endpoint)
	}
	return nil
}
