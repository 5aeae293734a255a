package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/verse-social/verse/internal/app/domain/challenge"
	"github.com/verse-social/verse/internal/app/domain/message"
	"github.com/verse-social/verse/internal/app/domain/post"
	"github.com/verse-social/verse/internal/app/domain/user"
	"github.com/verse-social/verse/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. Guarded multi-entity writes (matchmaking, settlement, cancel
// refunds) run under the single store lock, which gives them the same
// all-or-nothing behaviour the Mongo store gets from transactions.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	users           map[string]user.User
	usersByEmail    map[string]string
	usersByUsername map[string]string

	posts     map[string]post.Post
	postOrder []string

	messages     map[string]message.Message
	messageOrder []string

	challenges     map[string]challenge.Challenge
	challengeOrder []string
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.PostStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)
var _ storage.ChallengeStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:          1,
		users:           make(map[string]user.User),
		usersByEmail:    make(map[string]string),
		usersByUsername: make(map[string]string),
		posts:           make(map[string]post.Post),
		messages:        make(map[string]message.Message),
		challenges:      make(map[string]challenge.Challenge),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emailKey := strings.ToLower(strings.TrimSpace(u.Email))
	nameKey := strings.ToLower(strings.TrimSpace(u.Username))
	if _, exists := s.usersByEmail[emailKey]; exists {
		return user.User{}, fmt.Errorf("user with email %s: %w", u.Email, storage.ErrConflict)
	}
	if _, exists := s.usersByUsername[nameKey]; exists {
		return user.User{}, fmt.Errorf("user with username %s: %w", u.Username, storage.ErrConflict)
	}

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists: %w", u.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	u.Email = emailKey
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = cloneUser(u)
	s.usersByEmail[emailKey] = u.ID
	s.usersByUsername[nameKey] = u.ID
	return cloneUser(u), nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}

	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user.User{}, fmt.Errorf("user with email %s: %w", email, storage.ErrNotFound)
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", username, storage.ErrNotFound)
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, cloneUser(u))
	}
	return result, nil
}

func (s *Store) AdjustPoints(_ context.Context, id string, delta int) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjustPointsLocked(id, delta)
}

func (s *Store) adjustPointsLocked(id string, delta int) (user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	if u.VersePoints+delta < 0 {
		return user.User{}, fmt.Errorf("user %s balance %d cannot absorb %d: %w", id, u.VersePoints, delta, storage.ErrConflict)
	}
	u.VersePoints += delta
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return cloneUser(u), nil
}

func (s *Store) RecordVoteReward(_ context.Context, id string, midnight time.Time, cap int) (bool, user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}

	now := time.Now().UTC()
	if u.LastVoteDate.Before(midnight) {
		u.VotePointsEarnedToday = 0
	}
	u.LastVoteDate = now

	awarded := false
	if u.VotePointsEarnedToday < cap {
		u.VersePoints++
		u.VotePointsEarnedToday++
		awarded = true
	}
	u.UpdatedAt = now
	s.users[id] = u
	return awarded, cloneUser(u), nil
}

func (s *Store) ToggleFollow(_ context.Context, followerID, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	follower, ok := s.users[followerID]
	if !ok {
		return false, fmt.Errorf("user %s: %w", followerID, storage.ErrNotFound)
	}
	target, ok := s.users[targetID]
	if !ok {
		return false, fmt.Errorf("user %s: %w", targetID, storage.ErrNotFound)
	}

	now := time.Now().UTC()
	following := follower.IsFollowing(targetID)
	if following {
		follower.Following = removeString(follower.Following, targetID)
		target.Followers = removeString(target.Followers, followerID)
	} else {
		follower.Following = append(follower.Following, targetID)
		target.Followers = append(target.Followers, followerID)
	}
	follower.UpdatedAt = now
	target.UpdatedAt = now
	s.users[followerID] = follower
	s.users[targetID] = target
	return !following, nil
}

func (s *Store) AppendPostRef(_ context.Context, userID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	u.Posts = append(u.Posts, postID)
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

// PostStore implementation ----------------------------------------------------

func (s *Store) CreatePost(_ context.Context, p post.Post) (post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.posts[p.ID]; exists {
		return post.Post{}, fmt.Errorf("post %s already exists: %w", p.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Replies == nil {
		p.Replies = []post.Reply{}
	}

	s.posts[p.ID] = clonePost(p)
	s.postOrder = append(s.postOrder, p.ID)
	return clonePost(p), nil
}

func (s *Store) GetPost(_ context.Context, id string) (post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return post.Post{}, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	return clonePost(p), nil
}

func (s *Store) ListPostsByAuthors(_ context.Context, authorIDs []string, include bool, skip, limit int) ([]post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		members[id] = true
	}

	result := make([]post.Post, 0)
	skipped := 0
	// postOrder is insertion order; walk backwards for newest-first.
	for i := len(s.postOrder) - 1; i >= 0; i-- {
		p := s.posts[s.postOrder[i]]
		if members[p.PostedBy] != include {
			continue
		}
		if skipped < skip {
			skipped++
			continue
		}
		result = append(result, clonePost(p))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CountPostsByAuthors(_ context.Context, authorIDs []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		members[id] = true
	}
	count := 0
	for _, p := range s.posts {
		if members[p.PostedBy] {
			count++
		}
	}
	return count, nil
}

func (s *Store) ToggleLike(_ context.Context, postID, userID string) (post.Post, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return post.Post{}, false, fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}

	liked := p.LikedBy(userID)
	if liked {
		p.Likes = removeString(p.Likes, userID)
	} else {
		p.Likes = append(p.Likes, userID)
	}
	p.UpdatedAt = time.Now().UTC()
	s.posts[postID] = clonePost(p)
	return clonePost(p), !liked, nil
}

func (s *Store) AddReply(_ context.Context, postID string, r post.Reply) (post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return post.Post{}, fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	p.Replies = append(p.Replies, r)
	p.UpdatedAt = time.Now().UTC()
	s.posts[postID] = clonePost(p)
	return clonePost(p), nil
}

// MessageStore implementation -------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, m message.Message) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = s.nextIDLocked()
	} else if _, exists := s.messages[m.ID]; exists {
		return message.Message{}, fmt.Errorf("message %s already exists: %w", m.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	s.messages[m.ID] = m
	s.messageOrder = append(s.messageOrder, m.ID)
	return m, nil
}

func (s *Store) ListConversation(_ context.Context, a, b string, skip, limit int) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]message.Message, 0)
	skipped := 0
	for _, id := range s.messageOrder {
		m := s.messages[id]
		if !((m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)) {
			continue
		}
		if skipped < skip {
			skipped++
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) MarkConversationRead(_ context.Context, senderID, receiverID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	modified := 0
	for id, m := range s.messages {
		if m.Sender == senderID && m.Receiver == receiverID && !m.Read {
			m.Read = true
			m.UpdatedAt = now
			s.messages[id] = m
			modified++
		}
	}
	return modified, nil
}

func (s *Store) ListMessagesForUser(_ context.Context, userID string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]message.Message, 0)
	for i := len(s.messageOrder) - 1; i >= 0; i-- {
		m := s.messages[s.messageOrder[i]]
		if m.Sender == userID || m.Receiver == userID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *Store) CountUnread(_ context.Context, senderID, receiverID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.messages {
		if m.Sender == senderID && m.Receiver == receiverID && !m.Read {
			count++
		}
	}
	return count, nil
}

// ChallengeStore implementation -----------------------------------------------

func (s *Store) GetChallenge(_ context.Context, id string) (challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[id]
	if !ok {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", id, storage.ErrNotFound)
	}
	return cloneChallenge(c), nil
}

func (s *Store) CountCreatedSince(_ context.Context, kind challenge.Kind, challengerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.challenges {
		if c.Kind == kind && c.Challenger == challengerID && !c.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *Store) MatchOrCreate(_ context.Context, p storage.MatchParams) (challenge.Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	// Claim the oldest matchable pending entry, if any.
	for _, id := range s.challengeOrder {
		c, ok := s.challenges[id]
		if !ok {
			continue
		}
		if c.Kind != p.Kind || c.Skill != p.Skill || c.Status != challenge.StatusPending {
			continue
		}
		if c.Challenger == p.ActorID || c.CreatedAt.Before(p.Since) {
			continue
		}

		if _, err := s.adjustPointsLocked(p.ActorID, -p.Fee); err != nil {
			return challenge.Challenge{}, false, err
		}
		// The waiting challenger pays the match fee too; skip silently if
		// their balance can no longer cover it so it never goes negative.
		_, _ = s.adjustPointsLocked(c.Challenger, -p.Fee)

		c.Opponent = p.ActorID
		c.OpponentSubmission = p.Submission
		if p.Submission != "" {
			c.Status = challenge.StatusClosed
		} else {
			c.Status = challenge.StatusOpen
		}
		c.UpdatedAt = now
		s.challenges[id] = cloneChallenge(c)
		return cloneChallenge(c), true, nil
	}

	// No match: this is a creation, so the per-day limit applies. Counting
	// under the same lock as the insert keeps concurrent creators honest.
	if p.CreateLimit > 0 {
		created := 0
		for _, c := range s.challenges {
			if c.Kind == p.Kind && c.Challenger == p.ActorID && !c.CreatedAt.Before(p.CreatedSince) {
				created++
			}
		}
		if created >= p.CreateLimit {
			return challenge.Challenge{}, false, fmt.Errorf("create limit of %d reached: %w", p.CreateLimit, storage.ErrConflict)
		}
	}

	if _, err := s.adjustPointsLocked(p.ActorID, -p.Fee); err != nil {
		return challenge.Challenge{}, false, err
	}

	c := challenge.Challenge{
		ID:                   s.nextIDLocked(),
		Kind:                 p.Kind,
		Skill:                p.Skill,
		Challenger:           p.ActorID,
		ChallengerSubmission: p.Submission,
		Votes:                []challenge.Vote{},
		Status:               challenge.StatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.challenges[c.ID] = cloneChallenge(c)
	s.challengeOrder = append(s.challengeOrder, c.ID)
	return cloneChallenge(c), false, nil
}

func (s *Store) AttachOpponentSubmission(_ context.Context, id, opponentID, submission string) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", id, storage.ErrNotFound)
	}
	if c.Opponent != opponentID || (c.Status != challenge.StatusPending && c.Status != challenge.StatusOpen) {
		return challenge.Challenge{}, fmt.Errorf("challenge %s submission: %w", id, storage.ErrConflict)
	}

	c.OpponentSubmission = submission
	c.Status = challenge.StatusClosed
	c.UpdatedAt = time.Now().UTC()
	s.challenges[id] = cloneChallenge(c)
	return cloneChallenge(c), nil
}

func (s *Store) AddVote(_ context.Context, id string, v challenge.Vote) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", id, storage.ErrNotFound)
	}
	if c.Status != challenge.StatusClosed || c.IsParticipant(v.Voter) || c.HasVoted(v.Voter) {
		return challenge.Challenge{}, fmt.Errorf("challenge %s vote: %w", id, storage.ErrConflict)
	}

	c.Votes = append(c.Votes, v)
	c.UpdatedAt = time.Now().UTC()
	s.challenges[id] = cloneChallenge(c)
	return cloneChallenge(c), nil
}

func (s *Store) SettleChallenge(_ context.Context, id, winnerID string, bonus int) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", id, storage.ErrNotFound)
	}
	if c.Status != challenge.StatusClosed || c.Finalized {
		return challenge.Challenge{}, fmt.Errorf("challenge %s settle: %w", id, storage.ErrConflict)
	}

	if winnerID != "" {
		if _, err := s.adjustPointsLocked(winnerID, bonus); err != nil {
			return challenge.Challenge{}, err
		}
	}
	c.Finalized = true
	c.UpdatedAt = time.Now().UTC()
	s.challenges[id] = cloneChallenge(c)
	return cloneChallenge(c), nil
}

func (s *Store) CancelPending(_ context.Context, challengerID string, refund int) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range s.challengeOrder {
		c, ok := s.challenges[id]
		if !ok || c.Challenger != challengerID || c.Status != challenge.StatusPending {
			continue
		}

		delete(s.challenges, id)
		s.challengeOrder = append(s.challengeOrder[:i], s.challengeOrder[i+1:]...)
		if _, err := s.adjustPointsLocked(challengerID, refund); err != nil {
			return challenge.Challenge{}, err
		}
		return cloneChallenge(c), nil
	}
	return challenge.Challenge{}, fmt.Errorf("pending challenge for %s: %w", challengerID, storage.ErrNotFound)
}

func (s *Store) ListChallenges(_ context.Context, kind challenge.Kind, f storage.ChallengeFilter) ([]challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[challenge.Status]bool, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses[st] = true
	}

	result := make([]challenge.Challenge, 0)
	for i := len(s.challengeOrder) - 1; i >= 0; i-- {
		c := s.challenges[s.challengeOrder[i]]
		if c.Kind != kind {
			continue
		}
		if len(statuses) > 0 && !statuses[c.Status] {
			continue
		}
		if f.Participant != "" && !c.IsParticipant(f.Participant) {
			continue
		}
		if !f.CreatedAfter.IsZero() && c.CreatedAt.Before(f.CreatedAfter) {
			continue
		}
		if !f.CreatedBefore.IsZero() && !c.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		result = append(result, cloneChallenge(c))
	}
	return result, nil
}

// Helpers ----------------------------------------------------------------------

func removeString(src []string, value string) []string {
	out := src[:0]
	for _, s := range src {
		if s != value {
			out = append(out, s)
		}
	}
	return out
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	return append([]string(nil), src...)
}

func cloneUser(u user.User) user.User {
	u.Skills = cloneStrings(u.Skills)
	u.Followers = cloneStrings(u.Followers)
	u.Following = cloneStrings(u.Following)
	u.Posts = cloneStrings(u.Posts)
	return u
}

func clonePost(p post.Post) post.Post {
	p.Likes = cloneStrings(p.Likes)
	p.Replies = append([]post.Reply(nil), p.Replies...)
	return p
}

func cloneChallenge(c challenge.Challenge) challenge.Challenge {
	c.Votes = append([]challenge.Vote(nil), c.Votes...)
	return c
}
