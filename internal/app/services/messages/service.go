// Package messages implements direct messaging: sending, conversation
// history with read receipts, and the thread overview.
package messages

import (
	"context"
	"fmt"
	"sort"

	"github.com/verse-social/verse/internal/app/apperr"
	"github.com/verse-social/verse/internal/app/domain/message"
	"github.com/verse-social/verse/internal/app/metrics"
	"github.com/verse-social/verse/internal/app/storage"
	"github.com/verse-social/verse/pkg/logger"
)

// Notifier receives messaging side effects for real-time delivery. The
// websocket gateway implements it; a nil notifier disables delivery.
type Notifier interface {
	MessageCreated(m message.Message)
	ConversationRead(readerID, senderID string)
}

// Service manages direct messages.
type Service struct {
	store    storage.MessageStore
	users    storage.UserStore
	notifier Notifier
	log      *logger.Logger
}

// New constructs a message service.
func New(store storage.MessageStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("messages")
	}
	return &Service{store: store, users: users, log: log}
}

// SetNotifier attaches the real-time notifier. Wired after construction
// because the gateway and the service reference each other.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Send persists a message and pushes it to both participants.
func (s *Service) Send(ctx context.Context, senderID, receiverID, text, file string) (message.Message, error) {
	if receiverID == "" {
		return message.Message{}, fmt.Errorf("receiver is required: %w", apperr.ErrInvalidInput)
	}
	if senderID == receiverID {
		return message.Message{}, fmt.Errorf("cannot message yourself: %w", apperr.ErrInvalidInput)
	}
	if text == "" && file == "" {
		return message.Message{}, fmt.Errorf("message needs text or a file: %w", apperr.ErrInvalidInput)
	}
	if _, err := s.users.GetUser(ctx, receiverID); err != nil {
		return message.Message{}, err
	}

	m, err := s.store.CreateMessage(ctx, message.Message{
		Sender:   senderID,
		Receiver: receiverID,
		Text:     text,
		File:     file,
	})
	if err != nil {
		return message.Message{}, err
	}

	if s.notifier != nil {
		s.notifier.MessageCreated(m)
	}
	metrics.RecordMessageSent()
	s.log.WithField("message_id", m.ID).
		WithField("sender", senderID).
		WithField("receiver", receiverID).
		Info("message sent")
	return m, nil
}

// Conversation returns the history between the caller and the other user,
// oldest first. Reading marks incoming unread messages read and emits a read
// receipt when any flipped. limit <= 0 returns the whole history.
func (s *Service) Conversation(ctx context.Context, meID, otherID string, page, limit int) ([]message.Message, error) {
	skip := 0
	if limit > 0 && page > 1 {
		skip = (page - 1) * limit
	}

	msgs, err := s.store.ListConversation(ctx, meID, otherID, skip, limit)
	if err != nil {
		return nil, err
	}

	if _, err := s.MarkRead(ctx, meID, otherID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead flips unread messages from the other user to read and returns how
// many were modified. Idempotent; the read receipt only fires when something
// changed.
func (s *Service) MarkRead(ctx context.Context, meID, otherID string) (int, error) {
	modified, err := s.store.MarkConversationRead(ctx, otherID, meID)
	if err != nil {
		return 0, err
	}
	if modified > 0 && s.notifier != nil {
		s.notifier.ConversationRead(meID, otherID)
	}
	return modified, nil
}

// Threads summarizes the caller's conversations: one entry per partner with
// the latest message preview and the unread count, partners with unread
// messages first, then by recency.
func (s *Service) Threads(ctx context.Context, meID string) ([]message.Thread, error) {
	msgs, err := s.store.ListMessagesForUser(ctx, meID)
	if err != nil {
		return nil, err
	}

	threads := make([]message.Thread, 0)
	seen := make(map[string]bool)
	for _, m := range msgs {
		partnerID := m.Sender
		if partnerID == meID {
			partnerID = m.Receiver
		}
		if seen[partnerID] {
			continue
		}
		seen[partnerID] = true

		// msgs are newest first, so the first hit is the latest exchange.
		threads = append(threads, message.Thread{
			PartnerID:   partnerID,
			LastMessage: m.Preview(),
			UpdatedAt:   m.CreatedAt,
		})
	}

	for i := range threads {
		unread, err := s.store.CountUnread(ctx, threads[i].PartnerID, meID)
		if err != nil {
			return nil, err
		}
		threads[i].UnreadCount = unread

		partner, err := s.users.GetUser(ctx, threads[i].PartnerID)
		if err != nil {
			continue
		}
		threads[i].Username = partner.Username
		threads[i].ProfilePic = partner.ProfilePic
	}

	sort.SliceStable(threads, func(i, j int) bool {
		iUnread := threads[i].UnreadCount > 0
		jUnread := threads[j].UnreadCount > 0
		if iUnread != jUnread {
			return iUnread
		}
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}
