// Package posts implements the content feed: creating posts, the ranked
// feed query, likes and replies.
package posts

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/verse-social/verse/internal/app/apperr"
	"github.com/verse-social/verse/internal/app/domain/post"
	"github.com/verse-social/verse/internal/app/storage"
	"github.com/verse-social/verse/pkg/logger"
)

const (
	// DefaultFeedLimit applies when the request leaves limit unset.
	DefaultFeedLimit = 10
	// MaxFeedLimit caps the page size.
	MaxFeedLimit = 50
)

// Service manages feed posts.
type Service struct {
	store storage.PostStore
	users storage.UserStore
	log   *logger.Logger
}

// New constructs a post service.
func New(store storage.PostStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("posts")
	}
	return &Service{store: store, users: users, log: log}
}

// Create stores a post and records it on the author's post list.
func (s *Service) Create(ctx context.Context, authorID, text, img string) (post.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" && img == "" {
		return post.Post{}, fmt.Errorf("post needs text or an image: %w", apperr.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > post.MaxTextLength {
		return post.Post{}, fmt.Errorf("text must be at most %d characters: %w", post.MaxTextLength, apperr.ErrInvalidInput)
	}
	if _, err := s.users.GetUser(ctx, authorID); err != nil {
		return post.Post{}, err
	}

	created, err := s.store.CreatePost(ctx, post.Post{PostedBy: authorID, Text: text, Img: img})
	if err != nil {
		return post.Post{}, err
	}
	if err := s.users.AppendPostRef(ctx, authorID, created.ID); err != nil {
		return post.Post{}, err
	}

	s.log.WithField("post_id", created.ID).WithField("user_id", authorID).Info("post created")
	return created, nil
}

// Get returns a post by ID.
func (s *Service) Get(ctx context.Context, id string) (post.Post, error) {
	return s.store.GetPost(ctx, id)
}

// Feed pages the viewer's feed. Posts from followed authors (viewer included)
// come first, newest first; once those run out the page is backfilled with
// everyone else's posts, again newest first.
func (s *Service) Feed(ctx context.Context, viewerID string, page, limit int) ([]post.Post, error) {
	viewer, err := s.users.GetUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * limit

	followed := append(append([]string{}, viewer.Following...), viewerID)

	feed, err := s.store.ListPostsByAuthors(ctx, followed, true, skip, limit)
	if err != nil {
		return nil, err
	}
	if len(feed) >= limit {
		return feed, nil
	}

	totalFollowed, err := s.store.CountPostsByAuthors(ctx, followed)
	if err != nil {
		return nil, err
	}
	backfillSkip := skip - totalFollowed
	if backfillSkip < 0 {
		backfillSkip = 0
	}

	rest, err := s.store.ListPostsByAuthors(ctx, followed, false, backfillSkip, limit-len(feed))
	if err != nil {
		return nil, err
	}
	return append(feed, rest...), nil
}

// ToggleLike flips the viewer's like on the post and reports the new state.
func (s *Service) ToggleLike(ctx context.Context, postID, viewerID string) (post.Post, bool, error) {
	p, liked, err := s.store.ToggleLike(ctx, postID, viewerID)
	if err != nil {
		return post.Post{}, false, err
	}
	s.log.WithField("post_id", postID).
		WithField("user_id", viewerID).
		WithField("liked", liked).
		Info("like toggled")
	return p, liked, nil
}

// AddReply appends a comment to the post, denormalizing the author's display
// fields.
func (s *Service) AddReply(ctx context.Context, postID, authorID, text string) (post.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return post.Post{}, fmt.Errorf("reply text is required: %w", apperr.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > post.MaxTextLength {
		return post.Post{}, fmt.Errorf("text must be at most %d characters: %w", post.MaxTextLength, apperr.ErrInvalidInput)
	}

	author, err := s.users.GetUser(ctx, authorID)
	if err != nil {
		return post.Post{}, err
	}

	return s.store.AddReply(ctx, postID, post.Reply{
		UserID:         author.ID,
		Text:           text,
		Username:       author.Username,
		UserProfilePic: author.ProfilePic,
	})
}
