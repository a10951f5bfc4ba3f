package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/contexta-chat/internal/core"
	db "github.com/markdave123-py/contexta-chat/internal/core/database"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown email or a
// wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

const minPasswordLen = 8

type UserService struct {
	db db.DbClient
}

func NewUserService(dbc db.DbClient) *UserService {
	return &UserService{db: dbc}
}

// Register hashes the password and stores a new user.
func (s *UserService) Register(ctx context.Context, firstName, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, core.Invalidf("invalid email address")
	}
	if len(password) < minPasswordLen {
		return nil, core.Invalidf("password must be at least %d characters", minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(firstName),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.db.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
