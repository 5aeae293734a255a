package storage

import (
	"context"
	"errors"
	"time"

	"github.com/verse-social/verse/internal/app/domain/challenge"
	"github.com/verse-social/verse/internal/app/domain/message"
	"github.com/verse-social/verse/internal/app/domain/post"
	"github.com/verse-social/verse/internal/app/domain/user"
)

// ErrNotFound is wrapped by stores when an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is wrapped by stores when a guarded conditional write matched
// nothing: the entity exists but its state no longer satisfies the guard
// (already voted, already finalized, insufficient balance, already matched).
var ErrConflict = errors.New("precondition failed")

// UserStore persists user records. Mutations that cross a domain invariant
// (points balance, daily reward counter, follow symmetry) are exposed as
// single conditional operations rather than read-modify-write.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)

	// AdjustPoints applies a guarded balance delta. A negative delta that
	// would drive the balance below zero fails with ErrConflict.
	AdjustPoints(ctx context.Context, id string, delta int) (user.User, error)

	// RecordVoteReward grants one versePoint for a cast vote unless the
	// daily cap is already reached. The daily counter resets lazily when
	// the stored LastVoteDate predates midnight.
	RecordVoteReward(ctx context.Context, id string, midnight time.Time, cap int) (awarded bool, u user.User, err error)

	// ToggleFollow flips the follow edge symmetrically on both users and
	// reports whether the follower now follows the target.
	ToggleFollow(ctx context.Context, followerID, targetID string) (following bool, err error)

	// AppendPostRef appends a post reference to the author's post list.
	AppendPostRef(ctx context.Context, userID, postID string) error
}

// PostStore persists feed posts.
type PostStore interface {
	CreatePost(ctx context.Context, p post.Post) (post.Post, error)
	GetPost(ctx context.Context, id string) (post.Post, error)

	// ListPostsByAuthors pages posts newest-first. include selects whether
	// authorIDs is an allow list or a deny list.
	ListPostsByAuthors(ctx context.Context, authorIDs []string, include bool, skip, limit int) ([]post.Post, error)
	CountPostsByAuthors(ctx context.Context, authorIDs []string) (int, error)

	// ToggleLike atomically adds or removes the user from the like set and
	// reports whether the post is now liked by the user.
	ToggleLike(ctx context.Context, postID, userID string) (post.Post, bool, error)

	AddReply(ctx context.Context, postID string, r post.Reply) (post.Post, error)
}

// MessageStore persists direct messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, m message.Message) (message.Message, error)

	// ListConversation returns the history between two users ordered
	// oldest to newest. limit <= 0 disables pagination.
	ListConversation(ctx context.Context, a, b string, skip, limit int) ([]message.Message, error)

	// MarkConversationRead flips the read flag on every unread message
	// from sender to receiver and returns how many were modified.
	MarkConversationRead(ctx context.Context, senderID, receiverID string) (int, error)

	// ListMessagesForUser returns all messages the user sent or received,
	// newest first.
	ListMessagesForUser(ctx context.Context, userID string) ([]message.Message, error)

	CountUnread(ctx context.Context, senderID, receiverID string) (int, error)
}

// MatchParams drives the atomic matchmaking write.
type MatchParams struct {
	Kind       challenge.Kind
	Skill      string
	ActorID    string
	Submission string
	// Since bounds how old a pending entry may be to remain matchable.
	Since time.Time
	Fee   int

	// CreatedSince and CreateLimit guard insertion of a new pending entry:
	// with CreateLimit > 0 the insert fails with ErrConflict once the actor
	// has created CreateLimit entries at or after CreatedSince. Claiming an
	// existing entry is not a creation and bypasses the guard.
	CreatedSince time.Time
	CreateLimit  int
}

// ChallengeFilter selects challenge listings. Zero fields are ignored.
type ChallengeFilter struct {
	Statuses      []challenge.Status
	Participant   string
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// ChallengeStore persists challenge/poll entries. Every lifecycle mutation
// is one conditional write: two concurrent creators cannot both claim the
// same pending entry, a voter cannot vote twice, and finalization latches.
type ChallengeStore interface {
	GetChallenge(ctx context.Context, id string) (challenge.Challenge, error)
	CountCreatedSince(ctx context.Context, kind challenge.Kind, challengerID string, since time.Time) (int, error)

	// MatchOrCreate either claims a matchable pending entry of the same
	// kind and skill (setting the actor as opponent and deducting the fee
	// from both participants) or creates a new pending entry (deducting
	// the fee from the actor only). matched reports which happened. The
	// actor-side deduction and the per-day create limit are guarded;
	// ErrConflict if the balance is below the fee or the limit is reached.
	MatchOrCreate(ctx context.Context, p MatchParams) (c challenge.Challenge, matched bool, err error)

	// AttachOpponentSubmission records the opponent's media and closes the
	// entry. The write is guarded on the caller being the recorded
	// opponent and the status still being pending or open.
	AttachOpponentSubmission(ctx context.Context, id, opponentID, submission string) (challenge.Challenge, error)

	// AddVote appends the vote, guarded on status closed, voter not a
	// participant and voter not already present.
	AddVote(ctx context.Context, id string, v challenge.Vote) (challenge.Challenge, error)

	// SettleChallenge latches Finalized and credits the winner's bonus in
	// one transaction. winnerID may be empty for a tie; ErrConflict if
	// the entry is not closed or already finalized.
	SettleChallenge(ctx context.Context, id, winnerID string, bonus int) (challenge.Challenge, error)

	// CancelPending deletes the challenger's pending entry and refunds
	// the fee.
	CancelPending(ctx context.Context, challengerID string, refund int) (challenge.Challenge, error)

	ListChallenges(ctx context.Context, kind challenge.Kind, f ChallengeFilter) ([]challenge.Challenge, error)
}
