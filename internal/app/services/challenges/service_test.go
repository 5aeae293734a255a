package challenges

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verse-social/verse/internal/app/apperr"
	"github.com/verse-social/verse/internal/app/domain/challenge"
	"github.com/verse-social/verse/internal/app/domain/user"
	"github.com/verse-social/verse/internal/app/storage"
	"github.com/verse-social/verse/internal/app/storage/memory"
)

func newUser(t *testing.T, store *memory.Store, name string) user.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), user.User{
		Username:    name,
		Email:       name + "@example.com",
		VersePoints: user.StartingPoints,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func balance(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	u, err := store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	return u.VersePoints
}

func TestService_MatchLifecycle(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")
	carol := newUser(t, store, "carol")

	created, err := svc.Create(ctx, challenge.KindChallenge, "Guitar", "alice.mp4", alice.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Matched {
		t.Fatalf("first entry should not match")
	}
	if created.Challenge.Status != challenge.StatusPending {
		t.Fatalf("expected pending, got %s", created.Challenge.Status)
	}
	if created.Challenge.Skill != "guitar" {
		t.Fatalf("skill not normalised: %s", created.Challenge.Skill)
	}
	if created.AttemptsLeft != DailyCreateLimit-1 {
		t.Fatalf("expected %d attempts left, got %d", DailyCreateLimit-1, created.AttemptsLeft)
	}
	if got := balance(t, store, alice.ID); got != user.StartingPoints-EntryFee {
		t.Fatalf("creator fee not deducted: %d", got)
	}

	matched, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "bob.mp4", bob.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !matched.Matched {
		t.Fatalf("expected match")
	}
	if matched.Challenge.ID != created.Challenge.ID {
		t.Fatalf("matched a different entry")
	}
	if matched.Challenge.Status != challenge.StatusClosed {
		t.Fatalf("submission supplied, expected closed, got %s", matched.Challenge.Status)
	}
	if matched.Challenge.Opponent != bob.ID {
		t.Fatalf("opponent not recorded")
	}
	if got := balance(t, store, bob.ID); got != user.StartingPoints-EntryFee {
		t.Fatalf("opponent fee not deducted: %d", got)
	}
	if got := balance(t, store, alice.ID); got != user.StartingPoints-2*EntryFee {
		t.Fatalf("creator match fee not deducted: %d", got)
	}

	id := created.Challenge.ID

	if _, err := svc.Vote(ctx, id, alice.ID, challenge.VoteChallenger); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("challenger self-vote should be rejected, got %v", err)
	}
	if _, err := svc.Vote(ctx, id, bob.ID, challenge.VoteOpponent); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("opponent self-vote should be rejected, got %v", err)
	}

	vote, err := svc.Vote(ctx, id, carol.ID, challenge.VoteChallenger)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !vote.PointAwarded {
		t.Fatalf("first vote should earn a point")
	}
	if got := balance(t, store, carol.ID); got != user.StartingPoints+1 {
		t.Fatalf("vote reward not credited: %d", got)
	}

	if _, err := svc.Vote(ctx, id, carol.ID, challenge.VoteOpponent); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("double vote should conflict, got %v", err)
	}

	result, err := svc.Finalize(ctx, id)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.WinnerID != alice.ID {
		t.Fatalf("expected alice to win, got %q", result.WinnerID)
	}
	if result.Bonus != 20 {
		t.Fatalf("challenge bonus should be 20, got %d", result.Bonus)
	}
	if got := balance(t, store, alice.ID); got != user.StartingPoints-2*EntryFee+20 {
		t.Fatalf("winner bonus not credited: %d", got)
	}

	if _, err := svc.Finalize(ctx, id); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("repeat finalize should conflict, got %v", err)
	}
}

func TestService_DailyCreateLimit(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	skills := []string{"guitar", "piano", "drums"}
	for i, skill := range skills {
		res, err := svc.Create(ctx, challenge.KindChallenge, skill, "", alice.ID)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if res.AttemptsLeft != DailyCreateLimit-i-1 {
			t.Fatalf("create %d: expected %d attempts left, got %d", i, DailyCreateLimit-i-1, res.AttemptsLeft)
		}
	}

	if _, err := svc.Create(ctx, challenge.KindChallenge, "violin", "", alice.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("fourth create should hit the daily limit, got %v", err)
	}
}

// The limit must hold at the write itself, not just in the service precheck:
// two creates racing past the count would otherwise both insert.
func TestStore_MatchOrCreateEnforcesCreateLimit(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")
	for _, skill := range []string{"guitar", "piano", "drums"} {
		if _, err := svc.Create(ctx, challenge.KindChallenge, skill, "", alice.ID); err != nil {
			t.Fatalf("create %s: %v", skill, err)
		}
	}
	before := balance(t, store, alice.ID)

	// Straight to the store, as a request that raced past the precheck would.
	midnight := svc.localMidnight()
	_, _, err := store.MatchOrCreate(ctx, storage.MatchParams{
		Kind:         challenge.KindChallenge,
		Skill:        "violin",
		ActorID:      alice.ID,
		Since:        time.Now().Add(-MatchWindow),
		Fee:          EntryFee,
		CreatedSince: midnight,
		CreateLimit:  DailyCreateLimit,
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("store should reject the fourth insert, got %v", err)
	}
	if got := balance(t, store, alice.ID); got != before {
		t.Fatalf("rejected insert must not charge a fee: %d != %d", got, before)
	}

	// Claiming an existing entry is not a creation and bypasses the guard:
	// bob at his own limit can still match alice's pending guitar entry.
	for _, skill := range []string{"bass", "cello", "flute"} {
		if _, err := svc.Create(ctx, challenge.KindChallenge, skill, "", bob.ID); err != nil {
			t.Fatalf("create %s: %v", skill, err)
		}
	}
	_, matched, err := store.MatchOrCreate(ctx, storage.MatchParams{
		Kind:         challenge.KindChallenge,
		Skill:        "guitar",
		ActorID:      bob.ID,
		Submission:   "bob.mp4",
		Since:        time.Now().Add(-MatchWindow),
		Fee:          EntryFee,
		CreatedSince: midnight,
		CreateLimit:  DailyCreateLimit,
	})
	if err != nil {
		t.Fatalf("matching at the limit: %v", err)
	}
	if !matched {
		t.Fatalf("expected a match, got a creation")
	}
}

func TestService_InsufficientPoints(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	if _, err := store.AdjustPoints(ctx, alice.ID, -(user.StartingPoints - EntryFee + 1)); err != nil {
		t.Fatalf("adjust points: %v", err)
	}

	if _, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "", alice.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("create below the entry fee should conflict, got %v", err)
	}
}

func TestService_CancelRefund(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	if _, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "", alice.ID); err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, alice.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != challenge.StatusPending {
		t.Fatalf("only pending entries are cancellable")
	}
	if got := balance(t, store, alice.ID); got != user.StartingPoints {
		t.Fatalf("fee not refunded: %d", got)
	}

	if _, err := svc.Cancel(ctx, alice.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second cancel should report nothing pending, got %v", err)
	}
}

func TestService_SubmitMedia(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")
	carol := newUser(t, store, "carol")

	if _, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "alice.mp4", alice.ID); err != nil {
		t.Fatalf("create: %v", err)
	}
	matched, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "", bob.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if matched.Challenge.Status != challenge.StatusOpen {
		t.Fatalf("match without submission should be open, got %s", matched.Challenge.Status)
	}
	id := matched.Challenge.ID

	if _, err := svc.SubmitMedia(ctx, id, carol.ID, "carol.mp4"); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("non-opponent submission should be rejected, got %v", err)
	}

	updated, err := svc.SubmitMedia(ctx, id, bob.ID, "bob.mp4")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if updated.Status != challenge.StatusClosed {
		t.Fatalf("submission should close the matchup, got %s", updated.Status)
	}
	if updated.OpponentSubmission != "bob.mp4" {
		t.Fatalf("submission not recorded")
	}
}

func TestService_VoteRewardDailyCap(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")
	carol := newUser(t, store, "carol")

	if _, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "a.mp4", alice.ID); err != nil {
		t.Fatalf("create: %v", err)
	}
	matched, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "b.mp4", bob.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	capped, err := store.GetUser(ctx, carol.ID)
	if err != nil {
		t.Fatalf("get carol: %v", err)
	}
	capped.VotePointsEarnedToday = DailyVoteCap
	capped.LastVoteDate = time.Now().UTC()
	if _, err := store.UpdateUser(ctx, capped); err != nil {
		t.Fatalf("update carol: %v", err)
	}

	vote, err := svc.Vote(ctx, matched.Challenge.ID, carol.ID, challenge.VoteOpponent)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if vote.PointAwarded {
		t.Fatalf("capped voter should not earn a point")
	}
	if got := balance(t, store, carol.ID); got != user.StartingPoints {
		t.Fatalf("capped voter balance changed: %d", got)
	}
}

func TestService_TieAwardsNothing(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")
	carol := newUser(t, store, "carol")
	dave := newUser(t, store, "dave")

	if _, err := svc.Create(ctx, challenge.KindPoll, "guitar", "a.mp4", alice.ID); err != nil {
		t.Fatalf("create: %v", err)
	}
	matched, err := svc.Create(ctx, challenge.KindPoll, "guitar", "b.mp4", bob.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	id := matched.Challenge.ID

	if _, err := svc.Vote(ctx, id, carol.ID, challenge.VoteChallenger); err != nil {
		t.Fatalf("carol vote: %v", err)
	}
	if _, err := svc.Vote(ctx, id, dave.ID, challenge.VoteOpponent); err != nil {
		t.Fatalf("dave vote: %v", err)
	}

	aliceBefore := balance(t, store, alice.ID)
	bobBefore := balance(t, store, bob.ID)

	result, err := svc.Finalize(ctx, id)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.WinnerID != "" || result.Bonus != 0 {
		t.Fatalf("tie should award nothing, got winner=%q bonus=%d", result.WinnerID, result.Bonus)
	}
	if balance(t, store, alice.ID) != aliceBefore || balance(t, store, bob.ID) != bobBefore {
		t.Fatalf("balances changed on a tie")
	}
}

func TestService_PollWinBonus(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")
	carol := newUser(t, store, "carol")

	if _, err := svc.Create(ctx, challenge.KindPoll, "fits", "a.png", alice.ID); err != nil {
		t.Fatalf("create: %v", err)
	}
	matched, err := svc.Create(ctx, challenge.KindPoll, "fits", "b.png", bob.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := svc.Vote(ctx, matched.Challenge.ID, carol.ID, challenge.VoteOpponent); err != nil {
		t.Fatalf("vote: %v", err)
	}

	result, err := svc.Finalize(ctx, matched.Challenge.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.WinnerID != bob.ID || result.Bonus != 10 {
		t.Fatalf("poll bonus should be 10 for bob, got winner=%q bonus=%d", result.WinnerID, result.Bonus)
	}
}

func TestService_VoteBeforeClosed(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	carol := newUser(t, store, "carol")

	created, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "a.mp4", alice.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Vote(ctx, created.Challenge.ID, carol.ID, challenge.VoteChallenger); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("voting on a pending entry should conflict, got %v", err)
	}
}

func TestService_ListBuckets(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")
	carol := newUser(t, store, "carol")

	if _, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "a.mp4", alice.ID); err != nil {
		t.Fatalf("create matched: %v", err)
	}
	matched, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "b.mp4", bob.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := svc.Vote(ctx, matched.Challenge.ID, carol.ID, challenge.VoteChallenger); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := svc.Create(ctx, challenge.KindChallenge, "piano", "", alice.ID); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	list, err := svc.List(ctx, challenge.KindChallenge, carol.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Active) != 1 || list.Active[0].ID != matched.Challenge.ID {
		t.Fatalf("expected the matched entry in active, got %+v", list.Active)
	}
	if !list.Active[0].HasVoted {
		t.Fatalf("carol's vote should be annotated")
	}
	if len(list.Pending) != 0 {
		t.Fatalf("carol has no pending entries, got %d", len(list.Pending))
	}

	aliceList, err := svc.List(ctx, challenge.KindChallenge, alice.ID)
	if err != nil {
		t.Fatalf("list alice: %v", err)
	}
	if len(aliceList.Pending) != 1 || aliceList.Pending[0].Skill != "piano" {
		t.Fatalf("expected alice's piano entry pending, got %+v", aliceList.Pending)
	}

	if _, err := svc.Finalize(ctx, matched.Challenge.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	list, err = svc.List(ctx, challenge.KindChallenge, carol.ID)
	if err != nil {
		t.Fatalf("list after finalize: %v", err)
	}
	if len(list.Active) != 0 || len(list.Past) != 1 {
		t.Fatalf("finalized entry should move to past, got active=%d past=%d", len(list.Active), len(list.Past))
	}
}

func TestService_KindsDoNotMatch(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")

	if _, err := svc.Create(ctx, challenge.KindChallenge, "guitar", "", alice.ID); err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	res, err := svc.Create(ctx, challenge.KindPoll, "guitar", "", bob.ID)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	if res.Matched {
		t.Fatalf("a poll must not match a challenge entry")
	}
}
