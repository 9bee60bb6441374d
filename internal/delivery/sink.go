// Package delivery hands a finished export to its destination.
package delivery

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"npisearch/internal/config"
)

// Location is where a delivered export can be picked up.
type Location struct {
	Sink string
	Path string
	URL  string
}

func (l Location) String() string {
	if l.URL != "" {
		return l.URL
	}
	return l.Path
}

type Sink interface {
	Deliver(ctx context.Context, localPath string) (Location, error)
}

// LocalSink leaves the file where the exporter wrote it.
type LocalSink struct{}

func (LocalSink) Deliver(_ context.Context, localPath string) (Location, error) {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return Location{}, err
	}
	return Location{Sink: "local", Path: abs}, nil
}

// New builds the sink selected by EXPORT_SINK.
func New(ctx context.Context, cfg config.Config) (Sink, error) {
	switch cfg.ExportSink {
	case "", "local":
		return LocalSink{}, nil
	case "s3":
		return NewS3Sink(ctx, S3Config{
			Bucket:          cfg.ExportS3Bucket,
			Region:          cfg.ExportS3Region,
			Endpoint:        cfg.ExportS3Endpoint,
			PathStyle:       cfg.ExportS3PathStyle,
			Prefix:          cfg.ExportS3Prefix,
			PresignExpiry:   time.Duration(cfg.ExportS3PresignMinutes) * time.Minute,
			AccessKeyID:     cfg.ExportS3AccessKeyID,
			SecretAccessKey: cfg.ExportS3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unsupported export sink: %s", cfg.ExportSink)
	}
}
