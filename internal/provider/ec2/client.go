package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
)

// DefaultRegion is used for region discovery when no region is configured
const DefaultRegion = "us-east-1"

// Credentials selects how the AWS SDK authenticates. Empty fields fall back
// to the default credential chain.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
	Region          string
}

// LoadConfig resolves the AWS configuration
func LoadConfig(ctx context.Context, creds Credentials) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if creds.Region != "" {
		opts = append(opts, config.WithRegion(creds.Region))
	}
	if creds.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(creds.Profile))
	}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// NewClientFactory returns a factory of EC2 clients sharing cfg
func NewClientFactory(cfg aws.Config) ClientFactory {
	return func(region string) API {
		return awsec2.NewFromConfig(cfg, func(o *awsec2.Options) {
			if region != "" {
				o.Region = region
			}
		})
	}
}
