package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bitcoinsovereign/academy/internal/config"
	"github.com/bitcoinsovereign/academy/internal/database"
)

// Exporter ships batches of security events to object storage as JSON Lines,
// one object per export run. Losing a batch is acceptable; blocking the API
// on storage is not.
type Exporter struct {
	client   *s3.Client
	bucket   string
	lastSeen time.Time
}

// NewExporter builds an exporter against an S3-compatible endpoint
// (DigitalOcean Spaces in production). Returns nil without error when audit
// export is not configured.
func NewExporter(cfg *config.Config) (*Exporter, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:           cfg.Audit.Endpoint,
			SigningRegion: cfg.Audit.Region,
		}, nil
	})

	awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
		awsConfig.WithEndpointResolverWithOptions(resolver),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Audit.AccessKeyID, cfg.Audit.SecretAccessKey, "",
		)),
		awsConfig.WithRegion(cfg.Audit.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	log.Printf("[AUDIT] Exporter initialized for bucket %s", cfg.Audit.Bucket)
	return &Exporter{
		client:   client,
		bucket:   cfg.Audit.Bucket,
		lastSeen: time.Now().Add(-24 * time.Hour),
	}, nil
}

// ExportOnce uploads all security events recorded since the previous run.
// lastSeen tracks the newest exported timestamp; the fetch is exclusive of it
// so an event is shipped exactly once.
func (e *Exporter) ExportOnce(ctx context.Context) error {
	events, err := database.SecurityEventsAfter(e.lastSeen, 1000)
	if err != nil {
		return fmt.Errorf("failed to load security events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("security-events/%s/%d.jsonl", now.Format("2006/01/02"), now.UnixNano())

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload events: %w", err)
	}

	e.lastSeen = events[len(events)-1].CreatedAt
	log.Printf("[AUDIT] Exported %d security events to %s", len(events), key)
	return nil
}

// Run exports on an interval until the context is cancelled. Failures are
// logged and retried on the next tick.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := e.ExportOnce(ctx); err != nil {
				log.Printf("[AUDIT] Export failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
