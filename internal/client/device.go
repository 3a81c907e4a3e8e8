package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/devroad/mentorchat/internal/media"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
)

// FileDevice replays a file as if it were recorded from a microphone or
// camera. Used by the command line client and tests.
type FileDevice struct {
	Path string
	// MIMETypes lists the recording formats the device can produce. Empty
	// means every webm and ogg format.
	MIMETypes []string
}

func (d *FileDevice) Supports(mimeType string) bool {
	if len(d.MIMETypes) == 0 {
		return strings.Contains(mimeType, "webm") || strings.Contains(mimeType, "ogg")
	}
	for _, t := range d.MIMETypes {
		if strings.EqualFold(t, mimeType) {
			return true
		}
	}
	return false
}

// Acquire checks that the file can be read. A missing or unreadable file is
// reported like a refused device.
func (d *FileDevice) Acquire(ctx context.Context, kind media.Kind, mimeType string) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, apperrors.DeviceDenied(err)
		}
		return nil, fmt.Errorf("failed to open %s: %w", d.Path, err)
	}
	f.Close()
	return &fileRecording{path: d.Path}, nil
}

type fileRecording struct {
	path string
}

func (r *fileRecording) Stop() ([]byte, error) {
	return os.ReadFile(r.path)
}

func (r *fileRecording) Cancel() {}
