package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/utils"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Options configures the S3 client.
type S3Options struct {
	// Endpoint overrides the service endpoint, for S3-compatible stores.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// S3Store implements ObjectStore on Amazon S3.
type S3Store struct {
	client S3API
	logger log.Logger
}

// NewS3Store creates an S3Store from a shared SDK config.
func NewS3Store(cfg aws.Config, opts S3Options, logger log.Logger) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewS3StoreWithClient(client, logger)
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, logger log.Logger) *S3Store {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &S3Store{client: client, logger: logger.WithComponent("storage")}
}

// Upload streams the file to S3 and records its digest as metadata.
func (s *S3Store) Upload(ctx context.Context, ref types.ArtifactRef, localPath string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if ref.Kind() != types.ArtifactKindCode {
		return types.NewValidationError("cannot upload a %s artifact", ref.Kind())
	}

	digest, size, err := utils.FileDigest(localPath)
	if err != nil {
		return &types.PreconditionError{What: "bundle", Detail: err.Error()}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return &types.PreconditionError{What: "bundle", Detail: err.Error()}
	}
	defer f.Close()

	s.logger.Debug("uploading bundle",
		log.Str("target", ref.String()),
		log.Int64("size", size),
		log.Str("digest", digest))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(ref.Bucket),
		Key:           aws.String(ref.Key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/zip"),
		Metadata:      map[string]string{DigestMetadataKey: digest},
	})
	if err != nil {
		return translate("PutObject", err)
	}
	return nil
}

// BucketExists issues HeadBucket.
func (s *S3Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, translate("HeadBucket", err)
}

// Exists issues HeadObject.
func (s *S3Store) Exists(ctx context.Context, ref types.ArtifactRef) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, translate("HeadObject", err)
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	var nsk *s3types.NoSuchKey
	var nsb *s3types.NoSuchBucket
	return errors.As(err, &nf) || errors.As(err, &nsk) || errors.As(err, &nsb)
}

func translate(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		e := &types.APIError{Op: op, Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			e.Err = types.ErrAccessDenied
		case "NoSuchBucket", "NotFound", "NoSuchKey":
			e.Err = types.ErrNotFound
		}
		return e
	}
	return fmt.Errorf("%s: %w", op, err)
}
