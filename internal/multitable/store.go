package multitable

import (
	"context"
	"strings"

	"csvtap/internal/config"
	"csvtap/internal/objectstore"
)

// LocalScheme marks a bucket that is a directory on the local filesystem.
const LocalScheme = "file://"

// OpenStore opens the object store named by cfg.Bucket: a local directory
// for file:// buckets and S3 otherwise. Every request is instrumented.
func OpenStore(ctx context.Context, cfg config.Tap) (objectstore.Store, error) {
	if root, ok := strings.CutPrefix(cfg.Bucket, LocalScheme); ok {
		return objectstore.Instrument(objectstore.NewDir(root)), nil
	}
	s3, err := objectstore.NewS3(ctx, objectstore.S3Options{
		Bucket:          cfg.Bucket,
		Region:          cfg.AWSRegion,
		EndpointURL:     cfg.AWSEndpointURL,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SessionToken:    cfg.AWSSessionToken,
		Profile:         cfg.AWSProfile,
	})
	if err != nil {
		return nil, err
	}
	return objectstore.Instrument(s3), nil
}
