package writer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "gridflow/config"
	"gridflow/logger"
)

// S3Uploader mirrors finished artifacts to an S3 bucket so dashboards and
// downstream jobs can pick them up without access to the pipeline host.
type S3Uploader struct {
	config *appconfig.Config
	client *s3.Client
	log    *logger.Log
}

// NewS3Uploader configures the AWS SDK and validates that credentials are
// resolvable before the pipeline spends time fetching reports.
func NewS3Uploader(ctx context.Context, cfg *appconfig.Config) (*S3Uploader, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"region": cfg.Storage.S3.Region,
		"bucket": cfg.Storage.S3.Bucket,
	}).Debug("s3 uploader initialized")

	return &S3Uploader{
		config: cfg,
		client: s3.NewFromConfig(awsConfig),
		log:    log,
	}, nil
}

// Upload puts one local artifact file under the configured prefix, keyed by
// run date and file name.
func (u *S3Uploader) Upload(ctx context.Context, localPath string, runDate time.Time) (string, error) {
	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"path":   localPath,
		"bucket": u.config.Storage.S3.Bucket,
	})

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	key := path.Join(
		strings.Trim(u.config.Storage.S3.Prefix, "/"),
		runDate.Format("2006-01-02"),
		filepath.Base(localPath),
	)

	start := time.Now()
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
	})
	if err != nil {
		log.WithError(err).Error("artifact upload failed")
		return "", fmt.Errorf("put s3://%s/%s: %w", u.config.Storage.S3.Bucket, key, err)
	}

	logger.LogPerformanceEntry(log, "s3_uploader", "upload", time.Since(start), logger.Fields{"key": key})
	u.log.LogMetric("s3_uploader", "artifacts_uploaded", 1, "counter", logger.Fields{"key": key})
	return key, nil
}
