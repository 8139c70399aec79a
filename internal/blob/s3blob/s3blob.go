// Package s3blob implements blob.BlobStore on S3-compatible storage
// (AWS S3 or MinIO). Uploads report progress through a counting reader;
// download URLs are presigned GETs.
package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lamberthyl/chatsync/internal/blob"
)

// Seams for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// DownloadURLExpiry bounds how long a resolved download URL stays valid.
const DownloadURLExpiry = 15 * time.Minute

// Config holds the S3 connection settings.
type Config struct {
	Region       string
	BaseEndpoint string // MinIO or other S3-compatible endpoint; empty for AWS
	Bucket       string
	AccessKey    string // MINIO_ROOT_USER
	SecretKey    string // MINIO_ROOT_PASSWORD
}

// Store is an S3-backed blob store.
type Store struct {
	cfg     Config
	client  *s3.Client
	presign *s3.PresignClient
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3blob: load config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.BaseEndpoint != ""
	})
	return &Store{
		cfg:     cfg,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (s *Store) PutBytes(ctx context.Context, path string, data []byte, onProgress blob.ProgressFunc) error {
	body := newProgressReader(bytes.NewReader(data), int64(len(data)), onProgress)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(path),
		Body:          body,
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

func (s *Store) PutFile(ctx context.Context, path string, localPath string, onProgress blob.ProgressFunc) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("s3blob: open %s: %w", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3blob: stat %s: %w", localPath, err)
	}
	body := newProgressReader(f, info.Size(), onProgress)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(path),
		Body:          body,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

func (s *Store) DownloadURL(ctx context.Context, path string) (string, error) {
	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(DownloadURLExpiry))
	if err != nil {
		return "", fmt.Errorf("s3blob: presign %s: %w", path, err)
	}
	return req.URL, nil
}

// progressReader counts consumed bytes and reports non-decreasing fractions.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	last       float64
	onProgress blob.ProgressFunc
}

func newProgressReader(r io.Reader, total int64, onProgress blob.ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, onProgress: onProgress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.onProgress != nil && p.total > 0 {
		p.read += int64(n)
		f := float64(p.read) / float64(p.total)
		if f > 1 {
			f = 1
		}
		if f > p.last {
			p.last = f
			p.onProgress(f)
		}
	}
	return n, err
}

var _ blob.BlobStore = (*Store)(nil)
