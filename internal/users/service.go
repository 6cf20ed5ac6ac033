// Package users implements account signup, login and listing.
package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"place-registry/internal/domain"
	"place-registry/internal/models"
	errs "place-registry/pkg/errors"
	"place-registry/pkg/logging"
)

// TokenIssuer mints an access token for a user.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
	Image    string
}

// Session is the result of a successful signup or login.
type Session struct {
	User  *models.User
	Token string
}

type Service struct {
	users  domain.UserRepository
	tokens TokenIssuer
	log    *logging.ComponentLogger
	cost   int
}

func NewService(users domain.UserRepository, tokens TokenIssuer, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{users: users, tokens: tokens, log: log.WithComponent("users"), cost: bcrypt.DefaultCost}
}

// List returns all users. Password hashes never leave the repository layer
// in serialized form.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	const op = "users.Signup"
	email := normalizeEmail(in.Email)

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, errs.NewValidation(op, "user exists already, please login instead", nil)
	case !errs.Is(err, errs.ErrNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, errs.NewValidation(op, "could not create user, please try again", err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: string(hash),
		Image:        in.Image,
		Places:       []string{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	s.log.Ctx(ctx).Info("user signed up", logging.String("user_id", u.ID))
	return &Session{User: u, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "users.Login"
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, errs.NewAuthorization(op, "", "invalid credentials, could not log you in")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errs.NewAuthorization(op, u.ID, "invalid credentials, could not log you in")
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
