// Package users implements account lifecycle: signup, login, profiles and
// the follow graph.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/verse-social/verse/internal/app/apperr"
	"github.com/verse-social/verse/internal/app/auth"
	"github.com/verse-social/verse/internal/app/domain/user"
	"github.com/verse-social/verse/internal/app/storage"
	"github.com/verse-social/verse/pkg/logger"
)

// BcryptCost is the hashing cost applied to new passwords.
const BcryptCost = 12

const minPasswordLength = 6

// Service manages user accounts.
type Service struct {
	store  storage.UserStore
	tokens *auth.Manager
	log    *logger.Logger
}

// New constructs a user service.
func New(store storage.UserStore, tokens *auth.Manager, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, tokens: tokens, log: log}
}

// Signup registers a new account and returns it with a signed token. New
// accounts start with user.StartingPoints versePoints.
func (s *Service) Signup(ctx context.Context, username, email, password string) (user.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" || email == "" {
		return user.User{}, "", fmt.Errorf("username and email are required: %w", apperr.ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return user.User{}, "", fmt.Errorf("email is not valid: %w", apperr.ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return user.User{}, "", fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, apperr.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return user.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Skills:       []string{},
		Followers:    []string{},
		Following:    []string{},
		Posts:        []string{},
		VersePoints:  user.StartingPoints,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return user.User{}, "", fmt.Errorf("user already exists: %w", err)
		}
		return user.User{}, "", err
	}

	token, err := s.tokens.Issue(created.ID)
	if err != nil {
		return user.User{}, "", err
	}

	s.log.WithField("user_id", created.ID).WithField("username", created.Username).Info("user signed up")
	return created, token, nil
}

// Login verifies credentials and returns the account with a signed token.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (user.User, string, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, "", fmt.Errorf("invalid email or password: %w", apperr.ErrNotAuthenticated)
		}
		return user.User{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return user.User{}, "", fmt.Errorf("invalid email or password: %w", apperr.ErrNotAuthenticated)
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return user.User{}, "", err
	}

	s.log.WithField("user_id", u.ID).Info("user logged in")
	return u, token, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// GetByUsername returns a user by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return s.store.GetUserByUsername(ctx, username)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// ProfileUpdate carries the optional profile fields; empty values leave the
// stored field unchanged.
type ProfileUpdate struct {
	ProfilePic   string
	Bio          string
	Organization string
	Skills       []string
}

// UpdateProfile applies a profile update. Only the account owner may update.
func (s *Service) UpdateProfile(ctx context.Context, actorID, id string, upd ProfileUpdate) (user.User, error) {
	if actorID != id {
		return user.User{}, fmt.Errorf("cannot update another user's profile: %w", apperr.ErrNotAuthorized)
	}

	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if upd.ProfilePic != "" {
		u.ProfilePic = upd.ProfilePic
	}
	if upd.Bio != "" {
		u.Bio = upd.Bio
	}
	if upd.Organization != "" {
		u.Organization = upd.Organization
	}
	if upd.Skills != nil {
		u.Skills = normalizeSkills(upd.Skills)
	}

	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", id).Info("profile updated")
	return updated, nil
}

// ToggleFollow flips the follow edge between actor and target and reports
// whether the actor now follows the target.
func (s *Service) ToggleFollow(ctx context.Context, actorID, targetID string) (bool, error) {
	if actorID == targetID {
		return false, fmt.Errorf("cannot follow yourself: %w", apperr.ErrInvalidInput)
	}

	following, err := s.store.ToggleFollow(ctx, actorID, targetID)
	if err != nil {
		return false, err
	}
	s.log.WithField("user_id", actorID).
		WithField("target_id", targetID).
		WithField("following", following).
		Info("follow toggled")
	return following, nil
}

func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, sk := range skills {
		sk = strings.ToLower(strings.TrimSpace(sk))
		if sk != "" {
			out = append(out, sk)
		}
	}
	return out
}
