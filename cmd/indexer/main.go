// Package main confirms evidence uploads when their artifacts land in S3.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/kylejryan/disaster-relief-claims/internal/awsutil"
	"github.com/kylejryan/disaster-relief-claims/internal/config"
	"github.com/kylejryan/disaster-relief-claims/internal/logging"
	"github.com/kylejryan/disaster-relief-claims/internal/models"
	"github.com/kylejryan/disaster-relief-claims/internal/s3io"
	"github.com/kylejryan/disaster-relief-claims/internal/service"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

type confirmer interface {
	ConfirmUpload(ctx context.Context, key string, sizeBytes int64, etag string) (models.Evidence, error)
}

type header interface {
	Head(ctx context.Context, key string) (*s3io.ObjectMetadata, error)
}

// App holds the application state.
type App struct {
	log     logrus.FieldLogger
	objects header
	uploads confirmer
}

// main initializes the app and starts the Lambda handler.
func main() {
	env := config.MustLoad()
	log := logging.New(env.LogLevel)

	cfg, err := awsutil.Load(context.Background(), env)
	if err != nil {
		log.WithError(err).Fatal("load aws config")
	}
	c := awsutil.NewClients(cfg, env)
	artifacts := c.Artifacts(env)

	app := &App{
		log:     log,
		objects: artifacts,
		uploads: &service.Service{Store: c.Repo(env), Artifacts: artifacts, Log: log},
	}
	lambda.Start(app.handler)
}

// handler processes S3 event records. Keys outside the evidence layout and
// orphaned artifacts are dropped; any other failure is returned so the
// invocation is retried.
func (a *App) handler(ctx context.Context, ev events.S3Event) error {
	var errs []error
	for _, rec := range ev.Records {
		err := a.processS3Record(ctx, rec)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrUnrecognizedKey), errors.Is(err, service.ErrOrphanArtifact):
			a.log.WithError(err).Warn("indexer: record skipped")
		default:
			a.log.WithError(err).Error("indexer: process error")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// processS3Record handles a single S3 event record.
func (a *App) processS3Record(ctx context.Context, record events.S3EventRecord) error {
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		return fmt.Errorf("%w: %q", service.ErrUnrecognizedKey, record.S3.Object.Key)
	}
	if _, _, ok := s3io.ParseKey(key); !ok {
		return fmt.Errorf("%w: %s", service.ErrUnrecognizedKey, key)
	}

	meta, err := a.objects.Head(ctx, key)
	if err != nil {
		return err
	}

	evidence, err := a.uploads.ConfirmUpload(ctx, key, meta.Size, meta.ETag)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", key, err)
	}
	if evidence.ContentType != "" && meta.ContentType != "" && meta.ContentType != evidence.ContentType {
		a.log.WithFields(logrus.Fields{
			"s3_key":   key,
			"expected": evidence.ContentType,
			"actual":   meta.ContentType,
		}).Warn("indexer: content type differs from evidence record")
	}
	return nil
}
