// Package auth is the local identity provider: it checks credentials,
// issues tokens and lets admins manage profiles.
package auth

import (
	"campusfix/backend/internal/access"
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/models"
	"campusfix/backend/internal/storage"
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// SystemActor registers profiles without an authenticated admin, for the
// seed and create-user commands.
const SystemActor = ""

// NewUser is the input for Register.
type NewUser struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	Phone    *string     `json:"phone,omitempty"`
}

type Provider struct {
	store  storage.Storage
	tokens *TokenService
	log    *zap.Logger
}

func NewProvider(store storage.Storage, tokens *TokenService, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{store: store, tokens: tokens, log: log}
}

// SignIn checks the credentials and returns the user id with a fresh token.
// Unknown users and wrong passwords fail the same way.
func (p *Provider) SignIn(ctx context.Context, username, password string) (string, string, error) {
	profile, err := p.store.GetProfileByUsername(ctx, strings.TrimSpace(username))
	if apperr.IsKind(err, apperr.KindNotFound) {
		return "", "", apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return "", "", err
	}
	if profile.PasswordHash == "" || !CheckPassword(profile.PasswordHash, password) {
		return "", "", apperr.Unauthorized("invalid credentials")
	}

	token, err := p.tokens.Generate(profile.ID)
	if err != nil {
		return "", "", err
	}
	p.log.Info("signed in", zap.String("user_id", profile.ID))
	return profile.ID, token, nil
}

// CurrentUser resolves a token to the user id it was issued for.
func (p *Provider) CurrentUser(token string) (string, error) {
	return p.tokens.Parse(token)
}

func (p *Provider) requireAdmin(ctx context.Context, actorID string) error {
	if actorID == SystemActor {
		return nil
	}
	actor, err := p.store.GetProfile(ctx, actorID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return apperr.Unauthorized("unknown user")
	}
	if err != nil {
		return err
	}
	if !access.CanAct(*actor, nil, access.OpManageUsers) {
		return apperr.Forbidden("only admins can manage users")
	}
	return nil
}

// Register creates a profile with a password.
func (p *Provider) Register(ctx context.Context, actorID string, in NewUser) (*models.Profile, error) {
	if err := p.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Username == "":
		return nil, apperr.Validation("username is required")
	case in.Name == "":
		return nil, apperr.Validation("name is required")
	case !in.Role.Valid():
		return nil, apperr.Validation("role must be one of student, admin, maintenance")
	}

	hash, err := HashPassword(in.Password)
	if errors.Is(err, ErrWeakPassword) {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{
		Username:     in.Username,
		Name:         in.Name,
		Email:        in.Email,
		Role:         in.Role,
		Phone:        in.Phone,
		PasswordHash: hash,
	}
	if err := p.store.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	p.log.Info("profile registered", zap.String("user_id", profile.ID), zap.String("role", string(profile.Role)))
	return profile, nil
}

// ListUsers returns profiles, optionally narrowed to one role.
func (p *Provider) ListUsers(ctx context.Context, actorID string, role models.Role) ([]models.Profile, error) {
	if err := p.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if role != "" && !role.Valid() {
		return nil, apperr.Validation("unknown role %q", role)
	}
	return p.store.ListProfiles(ctx, role)
}
