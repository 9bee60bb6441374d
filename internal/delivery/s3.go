package delivery

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var tracer = otel.Tracer("npisearch/delivery")

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for MinIO and other S3-compatible stores
	PathStyle       bool
	Prefix          string
	PresignExpiry   time.Duration
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
}

// S3Sink uploads exports to a bucket and returns a presigned GET URL.
type S3Sink struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	expiry  time.Duration
}

func NewS3Sink(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*S3Sink, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing required env var: EXPORT_S3_BUCKET")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	opts := []func(*s3.Options){func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}
	client := s3.NewFromConfig(awsCfg, append(opts, optFns...)...)

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3Sink{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		expiry:  expiry,
	}, nil
}

func (s *S3Sink) key(localPath string) string {
	name := filepath.Base(localPath)
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3Sink) Deliver(ctx context.Context, localPath string) (Location, error) {
	key := s.key(localPath)
	ctx, span := tracer.Start(ctx, "delivery.s3")
	defer span.End()
	span.SetAttributes(attribute.String("s3.bucket", s.bucket), attribute.String("s3.key", key))

	loc, err := s.deliver(ctx, localPath, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Location{}, fmt.Errorf("deliver %s to s3://%s/%s: %w", filepath.Base(localPath), s.bucket, key, err)
	}
	return loc, nil
}

func (s *S3Sink) deliver(ctx context.Context, localPath, key string) (Location, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return Location{}, err
	}
	defer f.Close()

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(xlsxContentType),
	}); err != nil {
		return Location{}, err
	}

	out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)},
		func(po *s3.PresignOptions) { po.Expires = s.expiry })
	if err != nil {
		return Location{}, err
	}
	return Location{Sink: "s3", Path: "s3://" + s.bucket + "/" + key, URL: out.URL}, nil
}
