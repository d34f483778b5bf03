// Package archive uploads final session results to an S3-compatible
// object store when a session ends.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/config"
)

type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// New creates an archiver from config. Returns nil when no bucket is
// configured; callers treat a nil archiver as archival disabled.
func New(cfg config.ArchiveConfig, log zerolog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log.With().Str("component", "archive").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (a *Archiver) HeadBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &a.bucket,
	})
	return err
}

// StoreResult uploads a session's result JSON, gzip'd, under
// {prefix}/{eventId}/{sessionId}.json.gz.
func (a *Archiver) StoreResult(ctx context.Context, eventID, sessionID int, resultJSON []byte) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(resultJSON); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	key := a.objectKey(eventID, sessionID)
	contentType := "application/json"
	contentEncoding := "gzip"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          &a.bucket,
		Key:             &key,
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     &contentType,
		ContentEncoding: &contentEncoding,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	a.log.Info().
		Int("event_id", eventID).
		Int("session_id", sessionID).
		Int("bytes", buf.Len()).
		Msg("session result archived")
	return nil
}

func (a *Archiver) objectKey(eventID, sessionID int) string {
	key := fmt.Sprintf("%d/%d.json.gz", eventID, sessionID)
	if a.prefix != "" {
		return a.prefix + "/" + key
	}
	return key
}
