package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devroad/mentorchat/internal/media"
	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecording struct {
	data      []byte
	cancelled bool
}

func (r *fakeRecording) Stop() ([]byte, error) { return r.data, nil }
func (r *fakeRecording) Cancel() { r.cancelled = true }

type fakeDevice struct {
	supported []string
	deny      bool
	acquired  []string
	last      *fakeRecording
}

func (d *fakeDevice) Supports(mimeType string) bool {
	for _, t := range d.supported {
		if t == mimeType {
			return true
		}
	}
	return false
}

func (d *fakeDevice) Acquire(ctx context.Context, kind media.Kind, mimeType string) (Recording, error) {
	if d.deny {
		return nil, apperrors.DeviceDenied(errors.New("permission dismissed"))
	}
	d.acquired = append(d.acquired, mimeType)
	d.last = &fakeRecording{data: []byte("recorded")}
	return d.last, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	failures int
	calls    int
	files    []media.File
}

func (u *fakeUploader) Upload(ctx context.Context, kind media.Kind, f media.File) (*media.Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.files = append(u.files, f)
	if u.failures > 0 {
		u.failures--
		return nil, errors.New("connection reset")
	}
	key := kind.Name() + "/" + f.Name
	return &media.Result{URL: "https://cdn.test/" + key, Key: key, Kind: kind.Name(), Size: f.Size}, nil
}

var fixedClock = func() time.Time { return time.UnixMilli(1712345678901) }

func TestStartCaptureDeniedStaysIdle(t *testing.T) {
	c := NewComposer(&fakeDevice{deny: true}, &fakeUploader{}, 0)

	err := c.StartCapture(context.Background(), media.VoiceUpload{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDevicePermission, apperrors.CodeOf(err))
	assert.Equal(t, CaptureIdle, c.State())

	// without any device recording is refused the same way
	err = NewComposer(nil, &fakeUploader{}, 0).StartCapture(context.Background(), media.VideoUpload{})
	assert.Equal(t, apperrors.CodeDevicePermission, apperrors.CodeOf(err))
}

func TestOnlyOneCaptureAtATime(t *testing.T) {
	device := &fakeDevice{supported: voiceMIMETypes}
	c := NewComposer(device, &fakeUploader{}, 0)
	ctx := context.Background()

	require.NoError(t, c.StartCapture(ctx, media.VoiceUpload{}))
	assert.ErrorIs(t, c.StartCapture(ctx, media.VideoUpload{}), apperrors.ErrCaptureActive)
	assert.ErrorIs(t, c.PickFile(media.ImageUpload{}, media.File{Name: "a.png", DeclaredType: "image/png", Size: 1, Body: strings.NewReader("x")}), apperrors.ErrCaptureActive)
	assert.Len(t, device.acquired, 1)

	c.Discard()
	assert.True(t, device.last.cancelled)
	assert.Equal(t, CaptureIdle, c.State())
	_, err := c.StopCapture()
	assert.ErrorIs(t, err, apperrors.ErrNoActiveCapture)
}

func TestCaptureRejectsImageKind(t *testing.T) {
	c := NewComposer(&fakeDevice{}, &fakeUploader{}, 0)
	assert.ErrorIs(t, c.StartCapture(context.Background(), media.ImageUpload{}), apperrors.ErrInvalidMediaKind)
}

func TestRecordingFormatAndName(t *testing.T) {
	tests := []struct {
		name      string
		kind      media.Kind
		supported []string
		wantType  string
		wantName  string
	}{
		{"voice prefers opus webm", media.VoiceUpload{}, []string{"audio/webm", "audio/webm;codecs=opus"}, "audio/webm;codecs=opus", "voice-1712345678901.webm"},
		{"voice falls back to ogg", media.VoiceUpload{}, []string{"audio/ogg;codecs=opus"}, "audio/ogg;codecs=opus", "voice-1712345678901.ogg"},
		{"video prefers vp9", media.VideoUpload{}, videoMIMETypes, "video/webm;codecs=vp9,opus", "video-msg-1712345678901.webm"},
		{"video with vp8 only", media.VideoUpload{}, []string{"video/webm;codecs=vp8,opus"}, "video/webm;codecs=vp8,opus", "video-msg-1712345678901.webm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComposer(&fakeDevice{supported: tt.supported}, &fakeUploader{}, 0).WithClock(fixedClock)
			require.NoError(t, c.StartCapture(context.Background(), tt.kind))
			f, err := c.StopCapture()
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, f.DeclaredType)
			assert.Equal(t, tt.wantName, f.Name)
			assert.Equal(t, int64(len("recorded")), f.Size)
			assert.Equal(t, CaptureStopped, c.State())
		})
	}
}

func TestPickFileValidation(t *testing.T) {
	c := NewComposer(nil, &fakeUploader{}, 10)
	body := strings.NewReader("0123456789abc")

	tests := []struct {
		name string
		kind media.Kind
		file media.File
		want error
	}{
		{"too large", media.ImageUpload{}, media.File{Name: "a.png", DeclaredType: "image/png", Size: 13, Body: body}, apperrors.ErrFileTooLarge},
		{"image as voice", media.VoiceUpload{}, media.File{Name: "a.png", DeclaredType: "image/png", Size: 5, Body: body}, apperrors.ErrFileTypeNotAllowed},
		{"audio as video", media.VideoUpload{}, media.File{Name: "a.ogg", DeclaredType: "audio/ogg", Size: 5, Body: body}, apperrors.ErrFileTypeNotAllowed},
		{"empty", media.ImageUpload{}, media.File{Name: "a.png", DeclaredType: "image/png", Size: 0, Body: body}, apperrors.ErrFileRequired},
		{"no kind", nil, media.File{Name: "a.png", DeclaredType: "image/png", Size: 5, Body: body}, apperrors.ErrInvalidMediaKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, c.PickFile(tt.kind, tt.file), tt.want)
			assert.Equal(t, CaptureIdle, c.State())
		})
	}

	// video files are accepted as voice messages
	require.NoError(t, c.PickFile(media.VoiceUpload{}, media.File{Name: "clip.webm", DeclaredType: "video/webm; codecs=vp8", Size: 5, Body: body}))
	assert.Equal(t, CaptureSelected, c.State())
}

func TestUploadFailureKeepsMediaForRetry(t *testing.T) {
	uploader := &fakeUploader{failures: 1}
	c := NewComposer(nil, uploader, 0)
	ctx := context.Background()

	_, err := c.Upload(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNothingToUpload)

	require.NoError(t, c.PickFile(media.ImageUpload{}, media.File{Name: "p.jpg", DeclaredType: "image/jpeg", Size: 4, Body: strings.NewReader("jpeg")}))

	_, err = c.Upload(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.CodeOf(err))
	assert.Equal(t, CaptureFailed, c.State())
	assert.Equal(t, err, c.Err())

	_, err = c.Draft("caption", nil)
	assert.ErrorIs(t, err, apperrors.ErrMediaRequired)

	res, err := c.Upload(ctx)
	require.NoError(t, err)
	assert.Equal(t, CaptureUploaded, c.State())
	assert.Equal(t, 2, uploader.calls)
	_, pending := c.Pending()
	assert.False(t, pending)

	replyTo := "msg-1"
	d, err := c.Draft("caption", &replyTo)
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, d.Kind)
	require.NotNil(t, d.MediaURL)
	assert.Equal(t, res.URL, *d.MediaURL)
	assert.Equal(t, "caption", d.Body)
	assert.Equal(t, &replyTo, d.ReplyToID)

	// a second upload of the same media is refused
	_, err = c.Upload(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNothingToUpload)
}

func TestSentReturnsComposerToText(t *testing.T) {
	c := NewComposer(nil, &fakeUploader{}, 0)
	ctx := context.Background()

	// nothing uploaded yet, a pending pick survives
	require.NoError(t, c.PickFile(media.ImageUpload{}, media.File{Name: "p.png", DeclaredType: "image/png", Size: 3, Body: strings.NewReader("png")}))
	c.Sent()
	assert.Equal(t, CaptureSelected, c.State())

	_, err := c.Upload(ctx)
	require.NoError(t, err)
	first, err := c.Draft("look", nil)
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, first.Kind)

	c.Sent()
	assert.Equal(t, CaptureIdle, c.State())
	_, uploaded := c.Uploaded()
	assert.False(t, uploaded)

	next, err := c.Draft("and another thing", nil)
	require.NoError(t, err)
	assert.Equal(t, models.KindText, next.Kind)
	assert.Nil(t, next.MediaURL)
}

func TestDraftWithoutMediaIsText(t *testing.T) {
	c := NewComposer(nil, &fakeUploader{}, 0)
	d, err := c.Draft("hello", nil)
	require.NoError(t, err)
	assert.Equal(t, models.KindText, d.Kind)
	assert.Nil(t, d.MediaURL)
}

func TestCaptureStateNames(t *testing.T) {
	assert.Equal(t, "capturing", CaptureRecording.String())
	assert.Equal(t, "uploaded", CaptureUploaded.String())
	assert.Equal(t, "CaptureState(42)", CaptureState(42).String())
}
