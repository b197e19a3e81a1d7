// Package s3io stores evidence artifacts in S3: presigned uploads, metadata
// lookups and clean-up when evidence is destroyed.
package s3io

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kylejryan/disaster-relief-claims/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Presigner defines the interface for presigning S3 requests.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectAPI is the subset of the S3 client used for artifact bookkeeping.
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Upload is a presigned PUT for one evidence artifact.
type Upload struct {
	URL       string
	Headers   map[string]string
	ExpiresIn time.Duration
}

// ObjectMetadata holds S3 object metadata and user-defined metadata.
type ObjectMetadata struct {
	Size        int64
	ETag        string
	ContentType string
	Meta        map[string]string // lowercased user metadata
}

// Store manages evidence artifacts in one bucket.
type Store struct {
	Presigner Presigner
	Objects   ObjectAPI
	Bucket    string
	TTL       time.Duration
}

// PresignPut generates a presigned URL for uploading an object to S3 with the specified parameters.
func PresignPut(ctx context.Context, p Presigner, bucket, key, contentType string, meta map[string]string, ttl time.Duration) (string, time.Duration, error) {
	input := &s3.PutObjectInput{
		Bucket:               aws.String(bucket),
		Key:                  aws.String(key),
		ContentType:          aws.String(contentType),
		Metadata:             meta,
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	}

	req, err := p.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", 0, err
	}
	return req.URL, ttl, nil
}

// PresignUpload signs a PUT for the artifact of ev, which must already carry its S3 key.
func (s *Store) PresignUpload(ctx context.Context, ev models.Evidence) (Upload, error) {
	if ev.S3Key == "" {
		return Upload{}, errors.New("evidence has no s3 key")
	}
	meta := map[string]string{
		"claim_id":    ev.ClaimID,
		"evidence_id": ev.ID,
	}
	url, ttl, err := PresignPut(ctx, s.Presigner, s.Bucket, ev.S3Key, ev.ContentType, meta, s.TTL)
	if err != nil {
		return Upload{}, fmt.Errorf("presign %s: %w", ev.S3Key, err)
	}
	return Upload{
		URL:       url,
		Headers:   UploadHeaders(ev.ClaimID, ev.ID, ev.ContentType),
		ExpiresIn: ttl,
	}, nil
}

// Head fetches S3 object metadata including user-defined metadata.
func (s *Store) Head(ctx context.Context, key string) (*ObjectMetadata, error) {
	ho, err := s.Objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", key, err)
	}

	m := &ObjectMetadata{
		Meta: make(map[string]string, len(ho.Metadata)),
	}
	if ho.ContentLength != nil {
		m.Size = *ho.ContentLength
	}
	if ho.ETag != nil {
		m.ETag = strings.Trim(*ho.ETag, "\"")
	}
	if ho.ContentType != nil {
		m.ContentType = strings.ToLower(*ho.ContentType)
	}
	for k, v := range ho.Metadata {
		m.Meta[strings.ToLower(k)] = v
	}
	return m, nil
}

// Delete removes the given artifact keys. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
	}
	out, err := s.Objects.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.Bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete %d artifacts: %w", len(keys), err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return fmt.Errorf("delete %s: %s: %s (%d failed)",
			aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message), len(out.Errors))
	}
	return nil
}
