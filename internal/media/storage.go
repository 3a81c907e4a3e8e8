package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/devroad/mentorchat/internal/logger"
)

// Store persists an uploaded object under key and returns its public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) (string, error)
}

// LocalStore writes objects below Root. They are served by the API under
// /api/files/.
type LocalStore struct {
	Root    string
	BaseURL string
}

func NewLocalStore(root, baseURL string) *LocalStore {
	return &LocalStore{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) (string, error) {
	path, err := s.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return s.BaseURL + "/api/files/" + key, nil
}

// Path maps a key to its file, refusing keys that escape Root.
func (s *LocalStore) Path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.Root, clean), nil
}

// PutObjectAPI is the part of the S3 client the store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Store struct {
	client    PutObjectAPI
	bucket    string
	publicURL string
}

// NewS3Store loads AWS credentials from the environment. publicURL defaults
// to the bucket's virtual-hosted endpoint.
func NewS3Store(ctx context.Context, region, bucket, publicURL string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), region, bucket, publicURL), nil
}

func NewS3StoreWithClient(client PutObjectAPI, region, bucket, publicURL string) *S3Store {
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Store{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return s.publicURL + "/" + key, nil
}

// FallbackStore writes to Primary and, when that fails, to Secondary.
type FallbackStore struct {
	Primary   Store
	Secondary Store
	Log       *logger.Logger
}

func (s *FallbackStore) Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) (string, error) {
	url, err := s.Primary.Put(ctx, key, contentType, body, size)
	if err == nil {
		return url, nil
	}
	if s.Log != nil {
		s.Log.Warn().Err(err).Str("key", key).Msg("primary media store failed, using fallback")
	}
	if _, seekErr := body.Seek(0, io.SeekStart); seekErr != nil {
		return "", err
	}
	return s.Secondary.Put(ctx, key, contentType, body, size)
}
