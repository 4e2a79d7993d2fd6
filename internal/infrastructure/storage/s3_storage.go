package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/infrastructure/metrics"
)

var errArchiveDisabled = errors.New("s3 archive is not configured; set S3_BUCKET and credentials to enable")

// ObjectPutter is the subset of the S3 client used for archiving.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive copies uploads and replies to S3-compatible storage.
type S3Archive struct {
	bucket   string
	prefix   string
	client   ObjectPutter
	now      func() time.Time
	log      zerolog.Logger
	disabled bool
}

// NewS3Archive builds an archive from the S3_* settings. Missing credentials
// disable the archive instead of failing startup.
func NewS3Archive(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*S3Archive, error) {
	logger := log.With().Str("component", "s3-archive").Logger()
	archive := &S3Archive{
		bucket: strings.TrimSpace(cfg.S3Bucket),
		prefix: strings.Trim(strings.TrimSpace(cfg.S3Prefix), "/"),
		now:    time.Now,
		log:    logger,
	}

	accessKey := strings.TrimSpace(cfg.S3AccessKeyID)
	secretKey := strings.TrimSpace(cfg.S3SecretKey)
	if archive.bucket == "" || accessKey == "" || secretKey == "" {
		logger.Warn().Msg("S3_BUCKET or credentials are not set; archiving disabled")
		archive.disabled = true
		return archive, nil
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.S3Endpoint != "" {
			return aws.Endpoint{
				URL:           cfg.S3Endpoint,
				PartitionID:   "aws",
				SigningRegion: cfg.S3Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	archive.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
	})
	return archive, nil
}

// NewS3ArchiveWithClient wires an archive around an existing client.
func NewS3ArchiveWithClient(client ObjectPutter, bucket, prefix string, log zerolog.Logger) *S3Archive {
	return &S3Archive{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		client: client,
		now:    time.Now,
		log:    log.With().Str("component", "s3-archive").Logger(),
	}
}

// Key returns the object key for a local file: <prefix>/<yyyy/mm/dd>/<name>.
func (s *S3Archive) Key(localPath string) string {
	day := s.now().UTC().Format("2006/01/02")
	return path.Join(s.prefix, day, filepath.Base(localPath))
}

// Archive uploads the file at localPath.
func (s *S3Archive) Archive(ctx context.Context, localPath, contentType string) error {
	if s.disabled {
		return errArchiveDisabled
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open archive source: %w", err)
	}
	defer f.Close()

	start := time.Now()
	key := s.Key(localPath)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordExternalProviderLatency("s3", status, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	s.log.Debug().Str("key", key).Msg("file archived")
	return nil
}
