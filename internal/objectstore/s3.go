package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures the S3 store. Empty credential fields fall back to the
// AWS_* environment variables, then to the default credential chain (which
// honors Profile).
type S3Options struct {
	Bucket          string
	Region          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string

	// MaxAttempts bounds retries of a single request (listing page or
	// object fetch). Defaults to 5.
	MaxAttempts int
	// MaxBackoff caps the exponential backoff between attempts. Defaults to 30s.
	MaxBackoff time.Duration
	// PageSize is the listing page size (MaxKeys). Defaults to 1000.
	PageSize int32
}

// s3API is the subset of *s3.Client used here.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads from an S3 (or S3-compatible) bucket.
type S3 struct {
	bucket   string
	pageSize int32
	api      s3API
}

// NewS3 builds an S3 store. Transient failures are retried with exponential
// jitter backoff by the SDK retryer; exhaustion surfaces as a regular error.
func NewS3(ctx context.Context, opt S3Options) (*S3, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("objectstore: s3 bucket is required")
	}
	maxAttempts := opt.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	maxBackoff := opt.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
				o.MaxBackoff = maxBackoff
				o.Backoff = retry.NewExponentialJitterBackoff(maxBackoff)
			})
		}),
	}
	if opt.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opt.Region))
	}

	keyID := firstNonEmpty(opt.AccessKeyID, os.Getenv("AWS_ACCESS_KEY_ID"))
	secret := firstNonEmpty(opt.SecretAccessKey, os.Getenv("AWS_SECRET_ACCESS_KEY"))
	token := firstNonEmpty(opt.SessionToken, os.Getenv("AWS_SESSION_TOKEN"))
	switch {
	case keyID != "" && secret != "":
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, token),
		))
	case opt.Profile != "":
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opt.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opt.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opt.EndpointURL)
			// Non-AWS endpoints (MinIO, Ceph, localstack) rarely support
			// virtual-hosted addressing.
			o.UsePathStyle = true
		}
	})

	return newS3WithAPI(opt.Bucket, opt.PageSize, client), nil
}

func newS3WithAPI(bucket string, pageSize int32, api s3API) *S3 {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &S3{bucket: bucket, pageSize: pageSize, api: api}
}

func (s *S3) Bucket() string { return s.bucket }

func (s *S3) List(ctx context.Context, prefix string, fn PageFunc) error {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(s.pageSize),
	}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}

	p := s3.NewListObjectsV2Paginator(s.api, in)
	page := make([]Object, 0, s.pageSize)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("objectstore: list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		page = page[:0]
		for _, o := range out.Contents {
			page = append(page, Object{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified).UTC(),
				StorageClass: string(o.StorageClass),
			})
		}
		if len(page) == 0 {
			continue
		}
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Store = (*S3)(nil)
