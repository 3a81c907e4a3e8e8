package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var (
	errUsernameLength  = apperrors.InvalidArg("username must be between 3 and 32 characters")
	errUsernameCharset = apperrors.InvalidArg("username can only contain letters, numbers, and underscores")
	errPasswordLength  = apperrors.InvalidArg("password must be at least 6 characters")
	errUsernameTaken   = apperrors.InvalidArg("username already exists")
	errBadCredentials  = apperrors.Unauthorized("invalid username or password")
)

type Service struct {
	db        *sql.DB
	jwtSecret string
	tokenTTL  time.Duration
}

type Claims struct {
	UserID   int         `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

func New(db *sql.DB, jwtSecret string) *Service {
	return NewWithTokenTTL(db, jwtSecret, 24*time.Hour)
}

func NewWithTokenTTL(db *sql.DB, jwtSecret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}

	return &Service{
		db:        db,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// Register creates a learner account.
func (s *Service) Register(username, password, displayName string) (*models.User, error) {
	return s.CreateUser(username, password, displayName, models.RoleLearner)
}

// CreateUser creates an account with an explicit role. Used by Register and
// by the operator CLI to seed mentors.
func (s *Service) CreateUser(username, password, displayName string, role models.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return nil, errUsernameLength
	}
	if !usernamePattern.MatchString(username) {
		return nil, errUsernameCharset
	}
	if len(password) < 6 {
		return nil, errPasswordLength
	}
	if !role.Valid() {
		return nil, apperrors.ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var display *string
	if name := strings.TrimSpace(displayName); name != "" {
		display = &name
	}

	result, err := s.db.Exec(
		"INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		username,
		string(hash),
		display,
		string(role),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errUsernameTaken
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	return s.Identity(int(id))
}

// Login verifies credentials and returns a signed token with the user.
func (s *Service) Login(username, password string) (string, *models.User, error) {
	username = strings.TrimSpace(username)

	var userID int
	var passwordHash string
	err := s.db.QueryRow(
		"SELECT id, password_hash FROM users WHERE username = ?",
		username,
	).Scan(&userID, &passwordHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil, errBadCredentials
		}
		return "", nil, fmt.Errorf("failed to query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return "", nil, errBadCredentials
	}

	user, err := s.Identity(userID)
	if err != nil {
		return "", nil, err
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return token, user, nil
}

func (s *Service) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}

	return claims, nil
}

// Identity loads the current profile of a user. The role is read from the
// database, not the token, so role changes apply without a new login.
func (s *Service) Identity(userID int) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT id, username, display_name, role, created_at FROM users WHERE id = ?",
		userID,
	))
}

func (s *Service) FindByUsername(username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT id, username, display_name, role, created_at FROM users WHERE username = ?",
		strings.TrimSpace(username),
	))
}

// SetRole changes the role of a user.
func (s *Service) SetRole(userID int, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.ErrInvalidRole
	}
	result, err := s.db.Exec(
		"UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(role),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, apperrors.ErrUserNotFound
	}
	return s.Identity(userID)
}

func (s *Service) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var role string
	err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &role, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.Role = models.Role(role)
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
