// Package challenges implements the skill matchup game: matchmaking with an
// entry fee, opponent submissions, audience voting with a daily reward cap,
// and finalization payouts.
package challenges

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/verse-social/verse/internal/app/apperr"
	"github.com/verse-social/verse/internal/app/domain/challenge"
	"github.com/verse-social/verse/internal/app/metrics"
	"github.com/verse-social/verse/internal/app/storage"
	"github.com/verse-social/verse/pkg/logger"
)

const (
	// EntryFee is the versePoints cost to enter a matchup.
	EntryFee = 10
	// DailyCreateLimit bounds creations per challenger per local day.
	DailyCreateLimit = 3
	// DailyVoteCap bounds versePoints earned from voting per local day.
	DailyVoteCap = 10
	// MatchWindow is how long a pending entry stays matchable.
	MatchWindow = 24 * time.Hour
)

// Service manages challenge and poll matchups.
type Service struct {
	store storage.ChallengeStore
	users storage.UserStore
	log   *logger.Logger
	now   func() time.Time
}

// New constructs a challenge service.
func New(store storage.ChallengeStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("challenges")
	}
	return &Service{store: store, users: users, log: log, now: time.Now}
}

// localMidnight returns the start of the current local day.
func (s *Service) localMidnight() time.Time {
	now := s.now().Local()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// CreateResult is the outcome of a create call.
type CreateResult struct {
	Challenge challenge.Challenge `json:"challenge"`
	Matched   bool                `json:"matched"`
	// AttemptsLeft counts remaining creations for the local day, measured
	// after the operation.
	AttemptsLeft int `json:"attemptsLeft"`
}

// Create enters the actor into a matchup. If a matchable pending entry of
// the same kind and skill exists it is claimed atomically and both parties
// pay the entry fee; otherwise a new pending entry is created and only the
// actor pays.
func (s *Service) Create(ctx context.Context, kind challenge.Kind, skill, submission, actorID string) (CreateResult, error) {
	skill = strings.ToLower(strings.TrimSpace(skill))
	if skill == "" {
		return CreateResult{}, fmt.Errorf("skill is required: %w", apperr.ErrInvalidInput)
	}
	if kind != challenge.KindChallenge && kind != challenge.KindPoll {
		return CreateResult{}, fmt.Errorf("unknown kind %q: %w", kind, apperr.ErrInvalidInput)
	}

	midnight := s.localMidnight()
	countToday, err := s.store.CountCreatedSince(ctx, kind, actorID, midnight)
	if err != nil {
		return CreateResult{}, err
	}
	if countToday >= DailyCreateLimit {
		return CreateResult{}, fmt.Errorf("daily limit of %d reached: %w", DailyCreateLimit, storage.ErrConflict)
	}

	// Friendly precheck; the store's guarded deduction is authoritative.
	actor, err := s.users.GetUser(ctx, actorID)
	if err != nil {
		return CreateResult{}, err
	}
	if actor.VersePoints < EntryFee {
		return CreateResult{}, fmt.Errorf("insufficient versePoints, %d required: %w", EntryFee, storage.ErrConflict)
	}

	c, matched, err := s.store.MatchOrCreate(ctx, storage.MatchParams{
		Kind:       kind,
		Skill:      skill,
		ActorID:    actorID,
		Submission: strings.TrimSpace(submission),
		Since:      s.now().Add(-MatchWindow),
		Fee:        EntryFee,
		// The count above is a friendly precheck; the store enforces the
		// limit inside the same write so concurrent creates cannot exceed it.
		CreatedSince: midnight,
		CreateLimit:  DailyCreateLimit,
	})
	if err != nil {
		return CreateResult{}, err
	}

	countAfter, err := s.store.CountCreatedSince(ctx, kind, actorID, midnight)
	if err != nil {
		return CreateResult{}, err
	}

	metrics.RecordMatchup(string(kind), matched)
	s.log.WithField("challenge_id", c.ID).
		WithField("kind", string(kind)).
		WithField("skill", skill).
		WithField("user_id", actorID).
		WithField("matched", matched).
		Info("matchup entered")
	return CreateResult{Challenge: c, Matched: matched, AttemptsLeft: DailyCreateLimit - countAfter}, nil
}

// SubmitMedia records the opponent's submission and closes the matchup for
// voting. Only the recorded opponent may submit.
func (s *Service) SubmitMedia(ctx context.Context, id, actorID, submission string) (challenge.Challenge, error) {
	submission = strings.TrimSpace(submission)
	if submission == "" {
		return challenge.Challenge{}, fmt.Errorf("submission is required: %w", apperr.ErrInvalidInput)
	}

	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return challenge.Challenge{}, err
	}
	if c.Opponent != actorID {
		return challenge.Challenge{}, fmt.Errorf("only the matched opponent can submit: %w", apperr.ErrNotAuthorized)
	}

	updated, err := s.store.AttachOpponentSubmission(ctx, id, actorID, submission)
	if err != nil {
		return challenge.Challenge{}, err
	}
	s.log.WithField("challenge_id", id).WithField("user_id", actorID).Info("opponent submission recorded")
	return updated, nil
}

// VoteResult is the outcome of a vote.
type VoteResult struct {
	Challenge challenge.Challenge `json:"challenge"`
	// PointAwarded reports whether the voter earned a versePoint, false once
	// the daily cap is reached.
	PointAwarded bool `json:"pointAwarded"`
}

// Vote records the actor's pick on a closed matchup. Participants cannot
// vote on their own matchup and each user votes at most once. A recorded
// vote earns 1 versePoint up to DailyVoteCap per local day.
func (s *Service) Vote(ctx context.Context, id, actorID string, option challenge.Option) (VoteResult, error) {
	if !challenge.ValidOption(option) {
		return VoteResult{}, fmt.Errorf("option must be challenger or opponent: %w", apperr.ErrInvalidInput)
	}

	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return VoteResult{}, err
	}
	if c.IsParticipant(actorID) {
		return VoteResult{}, fmt.Errorf("participants cannot vote on their own matchup: %w", apperr.ErrNotAuthorized)
	}
	if c.Status != challenge.StatusClosed {
		return VoteResult{}, fmt.Errorf("voting is not open yet: %w", storage.ErrConflict)
	}
	if c.HasVoted(actorID) {
		return VoteResult{}, fmt.Errorf("already voted: %w", storage.ErrConflict)
	}

	updated, err := s.store.AddVote(ctx, id, challenge.Vote{Voter: actorID, Option: option})
	if err != nil {
		return VoteResult{}, err
	}

	awarded, _, err := s.users.RecordVoteReward(ctx, actorID, s.localMidnight(), DailyVoteCap)
	if err != nil {
		return VoteResult{}, err
	}

	metrics.RecordVote(string(c.Kind))
	s.log.WithField("challenge_id", id).
		WithField("user_id", actorID).
		WithField("option", string(option)).
		WithField("point_awarded", awarded).
		Info("vote recorded")
	return VoteResult{Challenge: updated, PointAwarded: awarded}, nil
}

// FinalizeResult is the outcome of finalization.
type FinalizeResult struct {
	Challenge challenge.Challenge `json:"challenge"`
	WinnerID  string              `json:"winner,omitempty"`
	Bonus     int                 `json:"bonus"`
}

// Finalize settles a closed matchup exactly once. The side with strictly
// more votes wins the kind's bonus; ties award nothing.
func (s *Service) Finalize(ctx context.Context, id string) (FinalizeResult, error) {
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return FinalizeResult{}, err
	}
	if c.Finalized {
		return FinalizeResult{}, fmt.Errorf("already finalized: %w", storage.ErrConflict)
	}
	if c.Status != challenge.StatusClosed {
		return FinalizeResult{}, fmt.Errorf("matchup is not closed: %w", storage.ErrConflict)
	}

	winner := c.Winner()
	bonus := 0
	if winner != "" {
		bonus = c.Kind.WinBonus()
	}

	settled, err := s.store.SettleChallenge(ctx, id, winner, bonus)
	if err != nil {
		return FinalizeResult{}, err
	}

	s.log.WithField("challenge_id", id).
		WithField("winner", winner).
		WithField("bonus", bonus).
		Info("matchup finalized")
	return FinalizeResult{Challenge: settled, WinnerID: winner, Bonus: bonus}, nil
}

// Cancel deletes the actor's oldest pending entry and refunds the entry fee.
func (s *Service) Cancel(ctx context.Context, actorID string) (challenge.Challenge, error) {
	c, err := s.store.CancelPending(ctx, actorID, EntryFee)
	if err != nil {
		return challenge.Challenge{}, err
	}
	s.log.WithField("challenge_id", c.ID).WithField("user_id", actorID).Info("pending matchup cancelled")
	return c, nil
}

// Annotated decorates a matchup with the caller's vote state.
type Annotated struct {
	challenge.Challenge
	HasVoted bool `json:"hasVoted"`
}

// ListResult buckets matchups for the caller.
type ListResult struct {
	// Active matchups are open or closed, unfinalized, within the match
	// window and still collecting votes.
	Active []Annotated `json:"active"`
	// Pending are the caller's own entries still waiting for an opponent.
	Pending []Annotated `json:"pending"`
	// Past matchups are finalized or aged out of the window.
	Past []Annotated `json:"past"`
}

// List buckets matchups of the kind for the caller, newest first within each
// bucket.
func (s *Service) List(ctx context.Context, kind challenge.Kind, actorID string) (ListResult, error) {
	result := ListResult{Active: []Annotated{}, Pending: []Annotated{}, Past: []Annotated{}}
	cutoff := s.now().Add(-MatchWindow)

	matched, err := s.store.ListChallenges(ctx, kind, storage.ChallengeFilter{
		Statuses: []challenge.Status{challenge.StatusOpen, challenge.StatusClosed},
	})
	if err != nil {
		return ListResult{}, err
	}
	for _, c := range matched {
		a := Annotated{Challenge: c, HasVoted: c.HasVoted(actorID)}
		if c.Finalized || c.CreatedAt.Before(cutoff) {
			result.Past = append(result.Past, a)
		} else {
			result.Active = append(result.Active, a)
		}
	}

	pending, err := s.store.ListChallenges(ctx, kind, storage.ChallengeFilter{
		Statuses:    []challenge.Status{challenge.StatusPending},
		Participant: actorID,
	})
	if err != nil {
		return ListResult{}, err
	}
	for _, c := range pending {
		result.Pending = append(result.Pending, Annotated{Challenge: c})
	}
	return result, nil
}

// Get returns one matchup annotated with the caller's vote state.
func (s *Service) Get(ctx context.Context, id, actorID string) (Annotated, error) {
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return Annotated{}, err
	}
	return Annotated{Challenge: c, HasVoted: c.HasVoted(actorID)}, nil
}
