// Package challenge defines the skill matchup entity. Head-to-head challenges
// and polls share the struct; Kind discriminates them and drives the win
// bonus.
package challenge

import "time"

// Kind discriminates the two matchup flavours.
type Kind string

const (
	KindChallenge Kind = "challenge"
	KindPoll      Kind = "poll"
)

// WinBonus is the versePoints award for winning a matchup of this kind.
func (k Kind) WinBonus() int {
	if k == KindPoll {
		return 10
	}
	return 20
}

// Status is the matchup lifecycle state. It only moves forward.
type Status string

const (
	// StatusPending means the entry is waiting for an opponent.
	StatusPending Status = "pending"
	// StatusOpen means an opponent matched but has not submitted yet.
	StatusOpen Status = "open"
	// StatusClosed means both submissions are in and voting may begin.
	StatusClosed Status = "closed"
)

// Option is the side a vote lands on.
type Option string

const (
	VoteChallenger Option = "challenger"
	VoteOpponent   Option = "opponent"
)

// ValidOption reports whether s names a votable side.
func ValidOption(s Option) bool {
	return s == VoteChallenger || s == VoteOpponent
}

// Vote records one audience member's pick.
type Vote struct {
	Voter  string `bson:"voter" json:"voter"`
	Option Option `bson:"option" json:"option"`
}

// Challenge is a matchup between two users in a skill category. Opponent is
// empty until matchmaking pairs the entry.
type Challenge struct {
	ID    string `bson:"_id" json:"_id"`
	Kind  Kind   `bson:"kind" json:"kind"`
	Skill string `bson:"skill" json:"skill"`

	Challenger           string `bson:"challenger" json:"challenger"`
	Opponent             string `bson:"opponent,omitempty" json:"opponent,omitempty"`
	ChallengerSubmission string `bson:"challengerSubmission,omitempty" json:"challengerSubmission,omitempty"`
	OpponentSubmission   string `bson:"opponentSubmission,omitempty" json:"opponentSubmission,omitempty"`

	Votes     []Vote `bson:"votes" json:"votes"`
	Status    Status `bson:"status" json:"status"`
	Finalized bool   `bson:"finalized" json:"finalized"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsParticipant reports whether the user is the challenger or the opponent.
func (c Challenge) IsParticipant(userID string) bool {
	return userID != "" && (userID == c.Challenger || userID == c.Opponent)
}

// HasVoted reports whether the user already cast a vote.
func (c Challenge) HasVoted(userID string) bool {
	for _, v := range c.Votes {
		if v.Voter == userID {
			return true
		}
	}
	return false
}

// VoteCounts tallies votes per side.
func (c Challenge) VoteCounts() (challenger, opponent int) {
	for _, v := range c.Votes {
		switch v.Option {
		case VoteChallenger:
			challenger++
		case VoteOpponent:
			opponent++
		}
	}
	return challenger, opponent
}

// Winner returns the user ID of the side with strictly more votes, or empty
// on a tie.
func (c Challenge) Winner() string {
	ch, op := c.VoteCounts()
	switch {
	case ch > op:
		return c.Challenger
	case op > ch:
		return c.Opponent
	default:
		return ""
	}
}
