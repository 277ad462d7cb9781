package lake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store is a Store backed by an S3-compatible object store.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3Store builds an S3Store for bucket using client, with a
// concurrent multipart uploader for large tick blobs.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// Upload marshals blob as JSON and writes it to the key computed from
// symbol, asOf, and seq.
func (s *S3Store) Upload(ctx context.Context, symbol string, asOf time.Time, seq int64, blob Blob) (string, error) {
	key := Key(symbol, asOf, seq)

	body, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("lake: marshal blob: %w", err)
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("lake: upload %s: %w", key, err)
	}
	return key, nil
}

// List returns keys under the symbol/date prefix.
func (s *S3Store) List(ctx context.Context, symbol string, date time.Time) ([]string, error) {
	u := date.UTC()
	prefix := fmt.Sprintf("ticks/%s/%04d/%02d/%02d/", symbol, u.Year(), u.Month(), u.Day())

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("lake: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// WalkAll lists every key under the ticks/ root, across all symbols
// and dates.
func (s *S3Store) WalkAll(ctx context.Context) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("ticks/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("lake: walk all: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Get fetches and decodes the blob stored at key.
func (s *S3Store) Get(ctx context.Context, key string) (Blob, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Blob{}, fmt.Errorf("lake: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Blob{}, fmt.Errorf("lake: read %s: %w", key, err)
	}

	var blob Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		return Blob{}, fmt.Errorf("lake: decode %s: %w", key, err)
	}
	if sym, _, ok := ParseKey(key); ok {
		blob.Symbol = sym
	}
	return blob, nil
}
