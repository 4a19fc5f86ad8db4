package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/keywordoor/keywordoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// s3Writer implements Writer for S3-compatible storage.
type s3Writer struct {
	log    logrus.FieldLogger
	cfg    *config.S3ArchiveConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Writer = (*s3Writer)(nil)

// NewS3Writer creates a Writer backed by the configured bucket.
func NewS3Writer(
	log logrus.FieldLogger,
	cfg *config.S3ArchiveConfig,
) (Writer, error) {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	client := s3.New(s3.Options{}, opts...)

	return &s3Writer{
		log:    log.WithField("component", "archive-s3"),
		cfg:    cfg,
		client: client,
	}, nil
}

// Preflight verifies S3 connectivity by writing a small test object.
func (w *s3Writer) Preflight(ctx context.Context) error {
	content := fmt.Sprintf(
		"keywordoor write test: %s", time.Now().UTC().Format(time.RFC3339),
	)

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.cfg.Bucket),
		Key:         aws.String(w.resolveKey(".keywordoor-write-test")),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", w.cfg.Bucket, err)
	}

	return nil
}

func (w *s3Writer) Put(
	ctx context.Context, key string, data []byte, contentType string,
) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.cfg.Bucket),
		Key:         aws.String(w.resolveKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	if w.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(w.cfg.StorageClass)
	}

	if w.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(w.cfg.ACL)
	}

	w.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": w.cfg.Bucket,
	}).Debug("Archiving document")

	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

// resolveKey prepends the configured prefix, if any.
func (w *s3Writer) resolveKey(key string) string {
	if w.cfg.Prefix == "" {
		return key
	}

	return strings.TrimSuffix(w.cfg.Prefix, "/") + "/" + key
}
