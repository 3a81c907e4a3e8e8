package client

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devroad/mentorchat/internal/auth"
	"github.com/devroad/mentorchat/internal/chat"
	"github.com/devroad/mentorchat/internal/db"
	"github.com/devroad/mentorchat/internal/handlers"
	"github.com/devroad/mentorchat/internal/media"
	"github.com/devroad/mentorchat/internal/metrics"
	"github.com/devroad/mentorchat/internal/models"
	"github.com/devroad/mentorchat/internal/ratelimit"
	"github.com/devroad/mentorchat/pkg/config"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// webmHeader is the start of an EBML stream with the webm doctype.
const webmHeader = "\x1a\x45\xdf\xa3\x9f\x42\x86\x81\x01\x42\xf7\x81\x01\x42\xf2\x81\x04\x42\xf3\x81\x08\x42\x82\x84webm\x42\x87\x81\x04\x42\x85\x81\x02"

type server struct {
	url      string
	authSvc  *auth.Service
	messages *chat.MessageStore
	learner  *Client
	mentor   *Client
	outsider *Client
	mentorID int
	dir      string
}

func newServer(t *testing.T, chatRateLimit int64) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	conn := database.GetConn()
	m := metrics.New()
	uploads := filepath.Join(dir, "uploads")
	cfg := &config.Config{
		CORSOrigins:       "*",
		MaxUploadSize:     1 << 20,
		FileStoragePath:   uploads,
		ChatRateLimit:     chatRateLimit,
		ChatRateWindow:    time.Minute,
		LoginRateLimit:    100,
		RegisterRateLimit: 100,
	}
	authSvc := auth.New(conn, "client-test-secret")
	s := &server{authSvc: authSvc, messages: chat.NewMessageStore(conn, m), dir: dir}

	router := handlers.NewRouter(handlers.Deps{
		Config:    cfg,
		Metrics:   m,
		Auth:      authSvc,
		Directory: chat.NewDirectory(conn, m),
		Messages:  s.messages,
		Guard:     ratelimit.NewMemory(m),
		Uploader:  media.NewUploader(media.NewLocalStore(uploads, ""), m),
	})
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	s.url = ts.URL

	s.learner = s.login(t, "learner", models.RoleLearner)
	s.mentor = s.login(t, "mentor", models.RoleMentor)
	s.outsider = s.login(t, "outsider", models.RoleLearner)
	me, err := s.mentor.Me(context.Background())
	require.NoError(t, err)
	s.mentorID = me.ID
	return s
}

func (s *server) login(t *testing.T, username string, role models.Role) *Client {
	t.Helper()
	_, err := s.authSvc.CreateUser(username, "password123", strings.ToUpper(username[:1])+username[1:], role)
	require.NoError(t, err)
	c := New(s.url, "")
	_, err = c.Login(context.Background(), username, "password123")
	require.NoError(t, err)
	require.NotEmpty(t, c.Token())
	return c
}

func TestReplyScenarioThroughInbox(t *testing.T) {
	s := newServer(t, 100)
	ctx := context.Background()

	detail, err := s.learner.OpenConversation(ctx, s.mentorID)
	require.NoError(t, err)
	again, err := s.learner.OpenConversation(ctx, s.mentorID)
	require.NoError(t, err)
	assert.Equal(t, detail.ID, again.ID)

	learnerBox := NewInbox(s.learner, 0)
	require.NoError(t, learnerBox.Refresh(ctx))
	require.NoError(t, learnerBox.Open(ctx, detail.ID))
	hi, err := learnerBox.Send(ctx, models.Draft{Kind: models.KindText, Body: "hi"})
	require.NoError(t, err)

	mentorBox := NewInbox(s.mentor, 0)
	require.NoError(t, mentorBox.Refresh(ctx))
	require.Len(t, mentorBox.Conversations(), 1)
	require.NoError(t, mentorBox.Open(ctx, detail.ID))
	got := mentorBox.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Body)

	mentorBox.Reply(got[0])
	hello, err := mentorBox.Send(ctx, models.Draft{Kind: models.KindText, Body: "hello"})
	require.NoError(t, err)
	require.NotNil(t, hello.ReplyTo)
	assert.Equal(t, "hi", hello.ReplyTo.Body)
	assert.Nil(t, mentorBox.ReplyingTo())

	require.NoError(t, learnerBox.Open(ctx, detail.ID))
	msgs := learnerBox.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, hi.ID, msgs[0].ID)
	require.NotNil(t, msgs[1].ReplyTo)
	assert.Equal(t, hi.ID, msgs[1].ReplyTo.ID)
	assert.Equal(t, "Learner", msgs[1].ReplyTo.SenderName)
}

func TestInboxWalksFullHistory(t *testing.T) {
	s := newServer(t, 100)
	ctx := context.Background()

	detail, err := s.learner.OpenConversation(ctx, s.mentorID)
	require.NoError(t, err)
	learner, err := s.learner.Me(ctx)
	require.NoError(t, err)
	for i := 0; i < 120; i++ {
		_, err := s.messages.Append(ctx, detail.ID, learner.ID, models.Draft{Kind: models.KindText, Body: fmt.Sprintf("m%03d", i)})
		require.NoError(t, err)
	}

	box := NewInbox(s.mentor, 50)
	require.NoError(t, box.Open(ctx, detail.ID))
	assert.Len(t, box.Messages(), 50)
	assert.True(t, box.HasOlder())

	n, err := box.LoadOlder(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	n, err = box.LoadOlder(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.False(t, box.HasOlder())

	n, err = box.LoadOlder(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	msgs := box.Messages()
	require.Len(t, msgs, 120)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%03d", i), m.Body)
	}
}

func TestClientErrorCodes(t *testing.T) {
	s := newServer(t, 2)
	ctx := context.Background()

	detail, err := s.learner.OpenConversation(ctx, s.mentorID)
	require.NoError(t, err)

	_, err = s.outsider.Messages(ctx, detail.ID, "", 0)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = s.learner.Send(ctx, detail.ID, models.Draft{Kind: models.KindVoice})
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	// a rejected send still counts against the window
	_, err = s.learner.Messages(ctx, detail.ID, "", 0)
	require.NoError(t, err)
	_, err = s.learner.Messages(ctx, detail.ID, "", 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeResourceExhausted, apperrors.CodeOf(err))
	assert.GreaterOrEqual(t, apperrors.RetryAfterOf(err), time.Second)

	_, err = New(s.url, "garbage").Me(ctx)
	assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
}

func TestSessionContextAgainstServer(t *testing.T) {
	s := newServer(t, 100)
	ctx := context.Background()

	session := NewSessionContext(s.mentor)
	user, err := session.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMentor, user.Role)
	assert.False(t, session.IsAdmin())

	session.Clear()
	_, ok := session.User()
	assert.False(t, ok)
	assert.Empty(t, s.mentor.Token())

	_, err = session.Init(ctx)
	assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
}

func TestRecordUploadAndSendVoice(t *testing.T) {
	s := newServer(t, 100)
	ctx := context.Background()

	recordingPath := filepath.Join(s.dir, "take.webm")
	require.NoError(t, os.WriteFile(recordingPath, []byte(webmHeader+strings.Repeat("\x00", 256)), 0o644))

	detail, err := s.learner.OpenConversation(ctx, s.mentorID)
	require.NoError(t, err)
	box := NewInbox(s.learner, 0)
	require.NoError(t, box.Open(ctx, detail.ID))

	composer := NewComposer(&FileDevice{Path: recordingPath}, s.learner, 0).
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) })

	// sending before the recording is uploaded is refused
	require.NoError(t, composer.StartCapture(ctx, media.VoiceUpload{}))
	_, err = composer.Draft("", nil)
	assert.ErrorIs(t, err, apperrors.ErrMediaRequired)

	f, err := composer.StopCapture()
	require.NoError(t, err)
	assert.Equal(t, "voice-1700000000000.webm", f.Name)
	assert.Equal(t, "audio/webm;codecs=opus", f.DeclaredType)

	res, err := composer.Upload(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "voice/"))
	assert.True(t, strings.HasSuffix(res.URL, "/api/files/"+res.Key))

	draft, err := composer.Draft("", nil)
	require.NoError(t, err)
	msg, err := box.Send(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, models.KindVoice, msg.Kind)
	require.NotNil(t, msg.MediaURL)
	assert.Equal(t, res.URL, *msg.MediaURL)
	assert.Equal(t, chat.MediaPlaceholder, msg.Body)

	composer.Discard()
	assert.Equal(t, CaptureIdle, composer.State())
}

func TestClientUploadRejectedByServer(t *testing.T) {
	s := newServer(t, 100)
	ctx := context.Background()

	composer := NewComposer(nil, s.learner, 0)
	text := []byte("this is not a picture")
	// the composer trusts the declared type; the server sniffs the content
	require.NoError(t, composer.PickFile(media.ImageUpload{}, media.File{
		Name:         "fake.png",
		DeclaredType: "image/png",
		Size:         int64(len(text)),
		Body:         strings.NewReader(string(text)),
	}))

	_, err := composer.Upload(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	assert.Equal(t, CaptureFailed, composer.State())
	_, pending := composer.Pending()
	assert.True(t, pending)
}

func TestClientUploadUnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1", "token")
	_, err := c.Upload(context.Background(), media.ImageUpload{}, media.File{
		Name:         "a.png",
		DeclaredType: "image/png",
		Size:         3,
		Body:         strings.NewReader("abc"),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.CodeOf(err))
}
