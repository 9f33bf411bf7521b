package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Options configures S3 access.
//
// Authentication priority follows the AWS SDK v2 default chain; explicit
// static credentials, when set, take precedence. For S3-compatible stores
// (MinIO, Wasabi) set Endpoint and usually ForcePathStyle.
type S3Options struct {
	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3Source streams an object from S3 or an S3-compatible store.
type S3Source struct {
	client *s3.Client
	bucket string
	key    string
}

var _ Source = (*S3Source)(nil)

func newS3Source(ctx context.Context, bucket, key string, opts S3Options) (*S3Source, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" && opts.Endpoint == "" {
		awsCfg.Region = "us-east-1"
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
			}
			o.UsePathStyle = opts.ForcePathStyle
		},
	}

	return &S3Source{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, 0, s.wrapError(err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (s *S3Source) Label() string { return path.Base(s.key) }

func (s *S3Source) Close() error { return nil }

func (s *S3Source) wrapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key)
		}
	}
	if strings.Contains(err.Error(), "404") {
		return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key)
	}
	return fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key, err)
}
