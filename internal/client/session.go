package client

import (
	"context"
	"sync"

	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
)

// IdentityAPI resolves the caller of a token.
type IdentityAPI interface {
	Me(ctx context.Context) (*models.User, error)
	SetToken(token string)
}

// SessionContext holds the signed in identity for the lifetime of a client.
// Init loads it and Clear drops it together with the token.
type SessionContext struct {
	api IdentityAPI

	mu   sync.RWMutex
	user *models.User
}

func NewSessionContext(api IdentityAPI) *SessionContext {
	return &SessionContext{api: api}
}

// Init fetches the current identity. A rejected token clears the session.
func (s *SessionContext) Init(ctx context.Context) (*models.User, error) {
	user, err := s.api.Me(ctx)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeUnauthenticated) {
			s.Clear()
		}
		return nil, err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, nil
}

func (s *SessionContext) Clear() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	s.api.SetToken("")
}

func (s *SessionContext) User() (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.user != nil
}

func (s *SessionContext) IsAdmin() bool {
	user, ok := s.User()
	return ok && user.Role == models.RoleAdmin
}
