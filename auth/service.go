package auth

import (
	"context"
	"errors"

	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
)

// ErrInvalidCredentials covers unknown email, wrong password and inactive
// accounts alike.
var ErrInvalidCredentials = errors.New("invalid credentials or inactive account")

// AdministratorStore is the lookup the auth layer needs.
type AdministratorStore interface {
	GetAdministrator(ctx context.Context, id commerce.AdministratorID) (*commerce.Administrator, error)
	GetAdministratorByEmail(ctx context.Context, email string) (*commerce.Administrator, error)
}

type Service struct {
	admins AdministratorStore
	tokens *TokenManager
	hasher *PasswordHasher
}

func NewService(admins AdministratorStore, tokens *TokenManager, hasher *PasswordHasher) *Service {
	return &Service{admins: admins, tokens: tokens, hasher: hasher}
}

func (s *Service) Tokens() *TokenManager { return s.tokens }

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *commerce.Administrator, error) {
	admin, err := s.admins.GetAdministratorByEmail(ctx, commerce.NormalizeEmail(email))
	if commerce.IsNotFound(err) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !admin.Active || !s.hasher.Verify(password, admin.PasswordDigest) {
		logging.Info(ctx).Int64("administrator_id", int64(admin.ID)).Msg("login rejected")
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(admin)
	if err != nil {
		return "", nil, err
	}
	return token, admin, nil
}

// Authenticate resolves a bearer token to an active administrator.
func (s *Service) Authenticate(ctx context.Context, token string) (*commerce.Administrator, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	admin, err := s.admins.GetAdministrator(ctx, claims.AdministratorID)
	if commerce.IsNotFound(err) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !admin.Active {
		return nil, ErrInvalidToken
	}
	return admin, nil
}
