package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verse-social/verse/internal/app/apperr"
	"github.com/verse-social/verse/internal/app/auth"
	"github.com/verse-social/verse/internal/app/domain/user"
	"github.com/verse-social/verse/internal/app/storage"
	"github.com/verse-social/verse/internal/app/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, *auth.Manager) {
	t.Helper()
	tokens, err := auth.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	store := memory.New()
	return New(store, tokens, nil), store, tokens
}

func TestService_SignupAndLogin(t *testing.T) {
	svc, _, tokens := newService(t)
	ctx := context.Background()

	u, token, err := svc.Signup(ctx, "alice", "Alice@Example.com", "password1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if u.VersePoints != user.StartingPoints {
		t.Fatalf("expected %d starting points, got %d", user.StartingPoints, u.VersePoints)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("email not normalised: %s", u.Email)
	}
	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify signup token: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("token subject mismatch: %s != %s", claims.UserID, u.ID)
	}

	if _, _, err := svc.Signup(ctx, "alice2", "alice@example.com", "password1"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate email should conflict, got %v", err)
	}

	logged, _, err := svc.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != u.ID {
		t.Fatalf("login returned wrong user")
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Fatalf("wrong password should be unauthenticated, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "password1"); !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Fatalf("unknown email should be unauthenticated, got %v", err)
	}
}

func TestService_SignupValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, "", "a@b.com", "password1"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("empty username should be invalid, got %v", err)
	}
	if _, _, err := svc.Signup(ctx, "bob", "not-an-email", "password1"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("bad email should be invalid, got %v", err)
	}
	if _, _, err := svc.Signup(ctx, "bob", "b@example.com", "short"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("short password should be invalid, got %v", err)
	}
}

func TestService_FollowToggle(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	alice, _, err := svc.Signup(ctx, "alice", "a@example.com", "password1")
	if err != nil {
		t.Fatalf("signup alice: %v", err)
	}
	bob, _, err := svc.Signup(ctx, "bob", "b@example.com", "password1")
	if err != nil {
		t.Fatalf("signup bob: %v", err)
	}

	following, err := svc.ToggleFollow(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if !following {
		t.Fatalf("expected following after first toggle")
	}

	a, _ := store.GetUser(ctx, alice.ID)
	b, _ := store.GetUser(ctx, bob.ID)
	if !a.IsFollowing(bob.ID) {
		t.Fatalf("alice should follow bob")
	}
	if len(b.Followers) != 1 || b.Followers[0] != alice.ID {
		t.Fatalf("bob's followers not updated: %v", b.Followers)
	}

	following, err = svc.ToggleFollow(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if following {
		t.Fatalf("expected unfollowed after second toggle")
	}
	b, _ = store.GetUser(ctx, bob.ID)
	if len(b.Followers) != 0 {
		t.Fatalf("unfollow should clear both sides: %v", b.Followers)
	}

	if _, err := svc.ToggleFollow(ctx, alice.ID, alice.ID); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("self-follow should be invalid, got %v", err)
	}
}

func TestService_UpdateProfile(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	alice, _, err := svc.Signup(ctx, "alice", "a@example.com", "password1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	bob, _, err := svc.Signup(ctx, "bob", "b@example.com", "password1")
	if err != nil {
		t.Fatalf("signup bob: %v", err)
	}

	if _, err := svc.UpdateProfile(ctx, bob.ID, alice.ID, ProfileUpdate{Bio: "hi"}); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("updating someone else's profile should be forbidden, got %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, alice.ID, alice.ID, ProfileUpdate{
		Bio:    "guitarist",
		Skills: []string{" Guitar ", "SINGING", ""},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Bio != "guitarist" {
		t.Fatalf("bio not applied: %s", updated.Bio)
	}
	if len(updated.Skills) != 2 || updated.Skills[0] != "guitar" || updated.Skills[1] != "singing" {
		t.Fatalf("skills not normalised: %v", updated.Skills)
	}
}
