// Package media validates uploaded chat media and hands it to storage.
package media

import (
	"strings"

	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
)

// DefaultMaxSize is the upload cap shared by every kind unless configured.
const DefaultMaxSize int64 = 25 * 1024 * 1024

// Kind is one of ImageUpload, VoiceUpload or VideoUpload. Each carries its
// own MIME predicate and size cap.
type Kind interface {
	Name() string
	MessageKind() models.MessageKind
	Allows(mimeType string) bool
	MaxSize() int64
	DefaultExt() string

	sealed()
}

type ImageUpload struct{ Limit int64 }
type VoiceUpload struct{ Limit int64 }
type VideoUpload struct{ Limit int64 }

func (ImageUpload) Name() string { return "image" }
func (ImageUpload) MessageKind() models.MessageKind { return models.KindImage }
func (ImageUpload) DefaultExt() string { return ".jpg" }
func (k ImageUpload) MaxSize() int64 { return orDefault(k.Limit) }
func (ImageUpload) Allows(mimeType string) bool {
	return hasPrefix(mimeType, "image/")
}
func (ImageUpload) sealed() {}

// Browsers record voice into audio/* or, for webm, sometimes video/*.
func (VoiceUpload) Name() string { return "voice" }
func (VoiceUpload) MessageKind() models.MessageKind { return models.KindVoice }
func (VoiceUpload) DefaultExt() string { return ".webm" }
func (k VoiceUpload) MaxSize() int64 { return orDefault(k.Limit) }
func (VoiceUpload) Allows(mimeType string) bool {
	return hasPrefix(mimeType, "audio/") || hasPrefix(mimeType, "video/")
}
func (VoiceUpload) sealed() {}

func (VideoUpload) Name() string { return "video" }
func (VideoUpload) MessageKind() models.MessageKind { return models.KindVideo }
func (VideoUpload) DefaultExt() string { return ".mp4" }
func (k VideoUpload) MaxSize() int64 { return orDefault(k.Limit) }
func (VideoUpload) Allows(mimeType string) bool {
	return hasPrefix(mimeType, "video/")
}
func (VideoUpload) sealed() {}

// ParseKind resolves a form value to its upload kind. maxSize <= 0 keeps
// DefaultMaxSize.
func ParseKind(name string, maxSize int64) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "image":
		return ImageUpload{Limit: maxSize}, nil
	case "voice":
		return VoiceUpload{Limit: maxSize}, nil
	case "video":
		return VideoUpload{Limit: maxSize}, nil
	}
	return nil, apperrors.ErrInvalidMediaKind
}

// Validate checks size and MIME type against the kind.
func Validate(kind Kind, size int64, mimeType string) error {
	if size <= 0 {
		return apperrors.ErrFileRequired
	}
	if size > kind.MaxSize() {
		return apperrors.ErrFileTooLarge
	}
	if !kind.Allows(mimeType) {
		return apperrors.ErrFileTypeNotAllowed
	}
	return nil
}

func orDefault(limit int64) int64 {
	if limit <= 0 {
		return DefaultMaxSize
	}
	return limit
}

func hasPrefix(mimeType, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), prefix)
}
