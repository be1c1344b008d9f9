// Package awsclient builds the shared AWS SDK configuration and the
// service clients the commands need.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/rzbill/agentdeploy/internal/config"
	"github.com/rzbill/agentdeploy/pkg/version"
)

// Load returns an SDK config for the configured region, honouring the
// profile and, when both halves are set, static credentials.
func Load(ctx context.Context, c config.AWS) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(c.Region),
		awscfg.WithAppID(version.UserAgent()),
	}
	if c.Profile != "" {
		opts = append(opts, awscfg.WithSharedConfigProfile(c.Profile))
	}
	if c.HasStaticCredentials() {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// Clients are the account-level clients used by preflight checks.
type Clients struct {
	STS *sts.Client
	IAM *iam.Client
	ECR *ecr.Client
}

// NewClients creates the clients from cfg.
func NewClients(cfg aws.Config) *Clients {
	return &Clients{
		STS: sts.NewFromConfig(cfg),
		IAM: iam.NewFromConfig(cfg),
		ECR: ecr.NewFromConfig(cfg),
	}
}
