package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// objectAPI is the part of the S3 client the archive uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds a path-style client from AWS_REGION, AWS_ENDPOINT,
// AWS_ACCESS_KEY and AWS_SECRET_KEY. It returns nil when AWS_ENDPOINT is
// unset or the configuration cannot be loaded.
func NewS3Client(ctx context.Context) *s3.Client {
	endpoint := util.GetEnv("AWS_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(util.GetEnvString("AWS_REGION", "us-east-1")),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			util.GetEnv("AWS_ACCESS_KEY"),
			util.GetEnv("AWS_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		logger.Warn("[S3] Failed to load config", "err", err)
		return nil
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// AnalysisArchive keeps the raw oracle reply of every processed article
// under analysis/<article id>/<date>-<nanoid>.json.
type AnalysisArchive struct {
	client objectAPI
	bucket string
	now    func() time.Time
}

func NewAnalysisArchive(client objectAPI, bucket string) *AnalysisArchive {
	return &AnalysisArchive{client: client, bucket: bucket, now: time.Now}
}

// NewAnalysisArchiveFromEnv returns nil when S3 is not configured.
func NewAnalysisArchiveFromEnv(ctx context.Context) *AnalysisArchive {
	client := NewS3Client(ctx)
	bucket := util.GetEnv("AWS_BUCKET")
	if client == nil || bucket == "" {
		return nil
	}
	return NewAnalysisArchive(client, bucket)
}

func (a *AnalysisArchive) key(articleID int64) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("analysis/%d/%s-%s.json", articleID, a.now().UTC().Format("20060102T150405"), id), nil
}

func (a *AnalysisArchive) PutAnalysis(ctx context.Context, articleID int64, raw []byte) (string, error) {
	key, err := a.key(articleID)
	if err != nil {
		return "", fmt.Errorf("failed to generate archive key: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload analysis to S3: %w", err)
	}
	return key, nil
}

func (a *AnalysisArchive) GetAnalysis(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}
	return buf.Bytes(), nil
}
