package media

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devroad/mentorchat/internal/metrics"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen matches the default read limit of mimetype.
const sniffLen = 3072

// File is an upload as received from the client.
type File struct {
	Name         string
	DeclaredType string
	Size         int64
	Body         io.ReadSeeker
}

type Result struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Uploader struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewUploader(store Store, m *metrics.Metrics) *Uploader {
	return &Uploader{store: store, metrics: m, now: time.Now}
}

// Upload validates f against kind and stores it. Validation failures are
// INVALID_ARGUMENT errors; storage failures are wrapped as upload errors.
func (u *Uploader) Upload(ctx context.Context, kind Kind, f File) (*Result, error) {
	res, err := u.upload(ctx, kind, f)
	if err != nil {
		result := "failed"
		if apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
			result = "rejected"
		}
		u.metrics.Upload(kind.Name(), result)
		return nil, err
	}
	u.metrics.Upload(kind.Name(), "ok")
	return res, nil
}

func (u *Uploader) upload(ctx context.Context, kind Kind, f File) (*Result, error) {
	if f.Body == nil {
		return nil, apperrors.ErrFileRequired
	}

	contentType, detectedExt, err := sniff(f)
	if err != nil {
		return nil, apperrors.Upload(err)
	}
	if err := Validate(kind, f.Size, contentType); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%d-%s%s", kind.Name(), u.now().UnixMilli(), randomSuffix(), extension(detectedExt, kind))
	url, err := u.store.Put(ctx, key, contentType, f.Body, f.Size)
	if err != nil {
		return nil, apperrors.Upload(err)
	}

	return &Result{
		URL:         url,
		Key:         key,
		Kind:        kind.Name(),
		ContentType: contentType,
		Size:        f.Size,
	}, nil
}

// sniff detects the content type from the first bytes of the body and
// rewinds it. An undetectable body falls back to the declared type.
func sniff(f File) (contentType, ext string, err error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", "", fmt.Errorf("failed to read upload: %w", err)
	}
	if _, err := f.Body.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	detected := mimetype.Detect(head[:n])
	if detected.Is("application/octet-stream") && f.DeclaredType != "" {
		return baseType(f.DeclaredType), "", nil
	}
	return baseType(detected.String()), detected.Extension(), nil
}

func baseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// extension picks the stored file extension from the sniffed type only. The
// client file name never reaches the key, since the local file route serves
// content by extension.
func extension(detected string, kind Kind) string {
	if detected != "" {
		return detected
	}
	return kind.DefaultExt()
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
