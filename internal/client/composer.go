package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/devroad/mentorchat/internal/media"
	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
)

// CaptureState is the state of the media attached to a message being
// composed.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureRecording
	CaptureStopped
	CaptureSelected
	CaptureUploading
	CaptureUploaded
	CaptureFailed
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureRecording:
		return "capturing"
	case CaptureStopped:
		return "stopped"
	case CaptureSelected:
		return "selected"
	case CaptureUploading:
		return "uploading"
	case CaptureUploaded:
		return "uploaded"
	case CaptureFailed:
		return "failed"
	}
	return fmt.Sprintf("CaptureState(%d)", int(s))
}

// Recording is an input device session in progress.
type Recording interface {
	// Stop ends the session and returns everything captured.
	Stop() ([]byte, error)
	// Cancel ends the session and drops what was captured.
	Cancel()
}

// Device is a source of voice or video recordings. Acquire returns an error
// with code DEVICE_PERMISSION_DENIED when access is refused.
type Device interface {
	Supports(mimeType string) bool
	Acquire(ctx context.Context, kind media.Kind, mimeType string) (Recording, error)
}

// Uploader stores media and returns where it can be fetched. *Client and
// *media.Uploader both satisfy it.
type Uploader interface {
	Upload(ctx context.Context, kind media.Kind, f media.File) (*media.Result, error)
}

var (
	voiceMIMETypes = []string{"audio/webm;codecs=opus", "audio/webm", "audio/ogg;codecs=opus"}
	videoMIMETypes = []string{"video/webm;codecs=vp9,opus", "video/webm;codecs=vp8,opus", "video/webm"}
)

// Composer holds at most one piece of media for the next message. Only one
// recording may run at a time and a recording excludes picking a file.
type Composer struct {
	device   Device
	uploader Uploader
	maxSize  int64
	now      func() time.Time

	mu        sync.Mutex
	state     CaptureState
	kind      media.Kind
	recording Recording
	mimeType  string
	pending   *media.File
	uploaded  *media.Result
	err       error
}

// NewComposer creates a composer. device may be nil when recording is not
// available; maxSize <= 0 keeps media.DefaultMaxSize.
func NewComposer(device Device, uploader Uploader, maxSize int64) *Composer {
	return &Composer{device: device, uploader: uploader, maxSize: maxSize, now: time.Now}
}

// WithClock replaces the time source used to name recordings.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

func (c *Composer) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed upload.
func (c *Composer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Pending returns the media waiting to be uploaded.
func (c *Composer) Pending() (media.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return media.File{}, false
	}
	return *c.pending, true
}

// Uploaded returns the stored media once an upload succeeded.
func (c *Composer) Uploaded() (*media.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploaded, c.uploaded != nil
}

// StartCapture begins a voice or video recording. A denied device leaves
// the composer idle and returns the device error.
func (c *Composer) StartCapture(ctx context.Context, kind media.Kind) error {
	switch kind.(type) {
	case media.VoiceUpload, media.VideoUpload:
	default:
		return apperrors.ErrInvalidMediaKind
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CaptureRecording || c.state == CaptureUploading {
		return apperrors.ErrCaptureActive
	}
	if c.device == nil {
		return apperrors.DeviceDenied(fmt.Errorf("no capture device"))
	}

	mimeType := preferredMIMEType(c.device, kind)
	rec, err := c.device.Acquire(ctx, kind, mimeType)
	if err != nil {
		return err
	}

	c.reset()
	c.state = CaptureRecording
	c.kind = kind
	c.recording = rec
	c.mimeType = mimeType
	return nil
}

// StopCapture finishes the recording and keeps it as pending media.
func (c *Composer) StopCapture() (media.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CaptureRecording {
		return media.File{}, apperrors.ErrNoActiveCapture
	}

	data, err := c.recording.Stop()
	c.recording = nil
	if err != nil {
		c.reset()
		return media.File{}, fmt.Errorf("failed to stop recording: %w", err)
	}

	f := media.File{
		Name:         recordingName(c.kind, c.mimeType, c.now()),
		DeclaredType: c.mimeType,
		Size:         int64(len(data)),
		Body:         bytes.NewReader(data),
	}
	c.pending = &f
	c.state = CaptureStopped
	return f, nil
}

// PickFile attaches a file chosen by the user after checking its size and
// type against kind.
func (c *Composer) PickFile(kind media.Kind, f media.File) error {
	if kind == nil || f.Body == nil {
		return apperrors.ErrInvalidMediaKind
	}
	limited := withLimit(kind, c.maxSize)
	if err := media.Validate(limited, f.Size, baseMIMEType(f.DeclaredType)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CaptureRecording || c.state == CaptureUploading {
		return apperrors.ErrCaptureActive
	}
	c.reset()
	c.kind = limited
	c.pending = &f
	c.state = CaptureSelected
	return nil
}

// Discard drops any recording, pending media and upload result.
func (c *Composer) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording != nil {
		c.recording.Cancel()
	}
	c.reset()
}

// Upload sends the pending media. On failure the media stays pending so the
// upload can be retried.
func (c *Composer) Upload(ctx context.Context) (*media.Result, error) {
	c.mu.Lock()
	if c.pending == nil || (c.state != CaptureStopped && c.state != CaptureSelected && c.state != CaptureFailed) {
		c.mu.Unlock()
		return nil, apperrors.ErrNothingToUpload
	}
	kind, f := c.kind, *c.pending
	c.state = CaptureUploading
	c.err = nil
	c.mu.Unlock()

	if _, err := f.Body.Seek(0, io.SeekStart); err != nil {
		return nil, c.failUpload(apperrors.Upload(err))
	}
	res, err := c.uploader.Upload(ctx, kind, f)
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.Upload(err)
		}
		return nil, c.failUpload(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CaptureUploading {
		// discarded while the upload ran
		return res, nil
	}
	c.state = CaptureUploaded
	c.uploaded = res
	c.pending = nil
	return res, nil
}

func (c *Composer) failUpload(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CaptureUploading {
		c.state = CaptureFailed
		c.err = err
	}
	return err
}

// Draft builds the message to send. Without media it is a text message;
// media that has not been uploaded yet blocks the draft.
func (c *Composer) Draft(text string, replyToID *string) (models.Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := models.Draft{Kind: models.KindText, Body: text, ReplyToID: replyToID}
	switch c.state {
	case CaptureIdle:
		return d, nil
	case CaptureUploaded:
		url := c.uploaded.URL
		d.Kind = c.kind.MessageKind()
		d.MediaURL = &url
		return d, nil
	}
	return models.Draft{}, apperrors.ErrMediaRequired
}

// Sent clears the composer once the draft it produced has been accepted by
// the server, so the next Draft starts from text again.
func (c *Composer) Sent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CaptureUploaded {
		c.reset()
	}
}

// reset returns to idle. Callers hold mu.
func (c *Composer) reset() {
	c.state = CaptureIdle
	c.kind = nil
	c.recording = nil
	c.mimeType = ""
	c.pending = nil
	c.uploaded = nil
	c.err = nil
}

func preferredMIMEType(d Device, kind media.Kind) string {
	candidates := voiceMIMETypes
	if _, ok := kind.(media.VideoUpload); ok {
		candidates = videoMIMETypes
	}
	for _, t := range candidates {
		if d.Supports(t) {
			return t
		}
	}
	return candidates[len(candidates)-1]
}

// recordingName names a blob voice-<ms>.webm, voice-<ms>.ogg or
// video-msg-<ms>.webm.
func recordingName(kind media.Kind, mimeType string, at time.Time) string {
	ms := at.UnixMilli()
	if _, ok := kind.(media.VideoUpload); ok {
		return fmt.Sprintf("video-msg-%d.webm", ms)
	}
	if strings.Contains(mimeType, "ogg") {
		return fmt.Sprintf("voice-%d.ogg", ms)
	}
	return fmt.Sprintf("voice-%d.webm", ms)
}

func withLimit(kind media.Kind, maxSize int64) media.Kind {
	switch kind.(type) {
	case media.ImageUpload:
		return media.ImageUpload{Limit: maxSize}
	case media.VoiceUpload:
		return media.VoiceUpload{Limit: maxSize}
	case media.VideoUpload:
		return media.VideoUpload{Limit: maxSize}
	}
	return kind
}

func baseMIMEType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
