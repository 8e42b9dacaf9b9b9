// Package archive copies finished match records to an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"rps-arena/config"
	"rps-arena/models"
)

// putter is the slice of the S3 client the archive needs.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Record is the archived form of a finished match.
type Record struct {
	Match      *models.Match  `json:"match"`
	Rounds     []models.Round `json:"rounds"`
	ArchivedAt time.Time      `json:"archived_at"`
}

type Archive struct {
	client putter
	bucket string
	prefix string
	now    func() time.Time
}

// New builds an S3 client for cfg. A custom endpoint (R2, MinIO) is used with
// path-style addressing.
func New(ctx context.Context, cfg config.Archive) (*Archive, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newArchive(client, cfg.Bucket, cfg.Prefix), nil
}

func newArchive(client putter, bucket, prefix string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Key is the object key a match is stored under.
func (a *Archive) Key(matchID string) string {
	return path.Join(a.prefix, matchID+".json")
}

// ArchiveMatch uploads the match and its rounds as one JSON document.
func (a *Archive) ArchiveMatch(ctx context.Context, m *models.Match, rounds []models.Round) error {
	body, err := json.Marshal(Record{Match: m, Rounds: rounds, ArchivedAt: a.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode match: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(m.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload match: %w", err)
	}
	return nil
}
