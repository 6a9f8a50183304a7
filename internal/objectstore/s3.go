package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/config"
	"github.com/rescale/docbatch/internal/http"
	"github.com/rescale/docbatch/internal/logging"
)

// S3API is the subset of *s3.Client used for listing.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Lister lists a bucket with ListObjectsV2.
type S3Lister struct {
	client S3API
	bucket string
	prefix string
	log    *logging.Logger
}

// NewS3Lister builds an S3 client from cfg.Storage. Static keys are used when
// configured; otherwise the default AWS credential chain applies. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Lister(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*S3Lister, error) {
	sc := cfg.Storage
	if sc.Bucket == "" {
		return nil, config.ErrMissingBucket
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if sc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(sc.Region))
	}
	if sc.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3ListerWithClient(client, sc.Bucket, sc.Prefix, logger), nil
}

// NewS3ListerWithClient wraps an existing client.
func NewS3ListerWithClient(client S3API, bucket, prefix string, logger *logging.Logger) *S3Lister {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &S3Lister{client: client, bucket: bucket, prefix: prefix, log: logger}
}

// List implements Lister. Each page is retried on its own so a transient
// failure late in a large listing does not restart from the first page.
func (l *S3Lister) List(ctx context.Context, prefix string) ([]api.Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
	}
	if p := joinPrefix(l.prefix, prefix); p != "" {
		input.Prefix = aws.String(p)
	}

	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	retry := retryConfig(l.log, config.ProviderS3)

	var objects []api.Object
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := http.ExecuteWithRetry(ctx, retry, func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			if http.ClassifyError(err) == http.ErrorTypeCredential {
				return nil, fmt.Errorf("list s3://%s: %w: %v", l.bucket, api.ErrUnauthorized, err)
			}
			return nil, fmt.Errorf("list s3://%s: %w", l.bucket, err)
		}

		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, api.Object{
				Name:        relativeName(l.prefix, key),
				Size:        aws.ToInt64(o.Size),
				TimeCreated: aws.ToTime(o.LastModified),
			})
		}
	}

	l.log.Debug().Str("bucket", l.bucket).Int("objects", len(objects)).Msg("listed s3 bucket")
	return objects, nil
}
