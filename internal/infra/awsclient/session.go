package awsclient

import (
	"errors"

	"custody/internal/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

// NewSession builds an AWS session from the region and optional endpoint
// override. Credentials come from the SDK's default chain.
func NewSession(cfg config.Config) (*session.Session, error) {
	if cfg.AWSRegion == "" {
		return nil, errors.New("AWS_REGION is required")
	}
	awsCfg := aws.NewConfig().WithRegion(cfg.AWSRegion)
	if cfg.AWSEndpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.AWSEndpoint).WithS3ForcePathStyle(true)
	}
	return session.NewSession(awsCfg)
}

func NewS3(sess *session.Session) s3iface.S3API {
	return s3.New(sess)
}

func NewSecretsManager(sess *session.Session) secretsmanageriface.SecretsManagerAPI {
	return secretsmanager.New(sess)
}
