// Package client talks to the mentorchat HTTP API and keeps the client side
// state of a chat session: the open conversation, the media composer and the
// signed in identity.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devroad/mentorchat/internal/media"
	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
)

// Client is a thin HTTP client for the chat API. It is safe for concurrent
// use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
		token:   token,
	}
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*models.User, error) {
	var resp authResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return resp.User, nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Mentors(ctx context.Context) ([]models.Participant, error) {
	var mentors []models.Participant
	if err := c.do(ctx, http.MethodGet, "/api/chat/mentors", nil, &mentors); err != nil {
		return nil, err
	}
	return mentors, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]*models.ConversationSummary, error) {
	var list []*models.ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/api/chat/conversations", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) OpenConversation(ctx context.Context, mentorID int) (*models.ConversationDetail, error) {
	var detail models.ConversationDetail
	body := map[string]int{"mentor_id": mentorID}
	if err := c.do(ctx, http.MethodPost, "/api/chat/conversations", body, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Messages fetches one page of history. An empty cursor asks for the newest
// page; limit <= 0 leaves the page size to the server.
func (c *Client) Messages(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page models.MessagePage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Send(ctx context.Context, conversationID string, d models.Draft) (*models.Message, error) {
	var msg models.Message
	path := "/api/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, d, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Upload streams f to the media endpoint. Rejections by the server keep
// their code; every other failure is an upload error.
func (c *Client) Upload(ctx context.Context, kind media.Kind, f media.File) (*media.Result, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, kind, f))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/media/upload", pr)
	if err != nil {
		pr.Close()
		return nil, apperrors.Upload(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result media.Result
	if err := c.send(req, &result); err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.CodeInvalidArgument, apperrors.CodeUnauthenticated, apperrors.CodeUnavailable:
			return nil, err
		}
		return nil, apperrors.Upload(err)
	}
	return &result, nil
}

func writeUploadForm(mw *multipart.Writer, kind media.Kind, f media.File) error {
	if err := mw.WriteField("kind", kind.Name()); err != nil {
		return err
	}

	contentType := f.DeclaredType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := f.Body.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.Copy(part, f.Body); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Error string         `json:"error"`
	Code  apperrors.Code `json:"code"`
}

// decodeError turns an error response back into an application error.
func decodeError(resp *http.Response) error {
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		body.Code = codeForStatus(resp.StatusCode)
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}

	appErr := &apperrors.AppError{Code: body.Code, Message: body.Error}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		appErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return appErr
}

func codeForStatus(status int) apperrors.Code {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return apperrors.CodeInvalidArgument
	case http.StatusUnauthorized:
		return apperrors.CodeUnauthenticated
	case http.StatusForbidden:
		return apperrors.CodePermissionDenied
	case http.StatusNotFound:
		return apperrors.CodeNotFound
	case http.StatusConflict:
		return apperrors.CodeFailedPrecondition
	case http.StatusTooManyRequests:
		return apperrors.CodeResourceExhausted
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperrors.CodeUnavailable
	}
	return apperrors.CodeInternal
}
