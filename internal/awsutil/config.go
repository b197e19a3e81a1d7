// Package awsutil builds AWS SDK clients from the application environment.
package awsutil

import (
	"context"

	"github.com/kylejryan/disaster-relief-claims/internal/config"
	"github.com/kylejryan/disaster-relief-claims/internal/ddb"
	"github.com/kylejryan/disaster-relief-claims/internal/s3io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Clients bundles the service clients the lambdas share.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	Presign  *s3.PresignClient
}

// Load loads the AWS configuration for env.Region.
func Load(ctx context.Context, env config.Env) (aws.Config, error) {
	return awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(env.Region))
}

// NewClients builds DynamoDB and S3 clients. When env.EndpointURL is set
// (LocalStack) every client is pointed at it and S3 uses path-style addressing.
func NewClients(cfg aws.Config, env config.Env) Clients {
	endpoint := env.EndpointURL
	db := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	s3c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return Clients{
		DynamoDB: db,
		S3:       s3c,
		Presign:  s3.NewPresignClient(s3c),
	}
}

// Repo returns the claim store backed by the DynamoDB client.
func (c Clients) Repo(env config.Env) *ddb.Repo {
	return &ddb.Repo{DB: c.DynamoDB, Table: env.Table, DisasterIndex: env.DisasterIndex}
}

// Artifacts returns the evidence artifact store backed by the S3 clients.
func (c Clients) Artifacts(env config.Env) *s3io.Store {
	return &s3io.Store{Presigner: c.Presign, Objects: c.S3, Bucket: env.Bucket, TTL: env.PresignTTL}
}
