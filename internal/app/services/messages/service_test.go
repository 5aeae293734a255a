package messages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/verse-social/verse/internal/app/apperr"
	"github.com/verse-social/verse/internal/app/domain/message"
	"github.com/verse-social/verse/internal/app/domain/user"
	"github.com/verse-social/verse/internal/app/storage/memory"
)

type recordingNotifier struct {
	created []message.Message
	reads   [][2]string
}

func (n *recordingNotifier) MessageCreated(m message.Message) {
	n.created = append(n.created, m)
}

func (n *recordingNotifier) ConversationRead(readerID, senderID string) {
	n.reads = append(n.reads, [2]string{readerID, senderID})
}

func setup(t *testing.T) (*Service, *memory.Store, *recordingNotifier, user.User, user.User) {
	t.Helper()
	store := memory.New()
	notifier := &recordingNotifier{}
	svc := New(store, store, nil)
	svc.SetNotifier(notifier)

	ctx := context.Background()
	alice, err := store.CreateUser(ctx, user.User{Username: "alice", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := store.CreateUser(ctx, user.User{Username: "bob", Email: "b@example.com"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	return svc, store, notifier, alice, bob
}

func TestService_SendNotifies(t *testing.T) {
	svc, _, notifier, alice, bob := setup(t)
	ctx := context.Background()

	m, err := svc.Send(ctx, alice.ID, bob.ID, "hey", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Read {
		t.Fatalf("new messages start unread")
	}
	if len(notifier.created) != 1 || notifier.created[0].ID != m.ID {
		t.Fatalf("notifier not invoked: %+v", notifier.created)
	}

	if _, err := svc.Send(ctx, alice.ID, alice.ID, "hi me", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("self-message should be invalid, got %v", err)
	}
	if _, err := svc.Send(ctx, alice.ID, bob.ID, "", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("empty message should be invalid, got %v", err)
	}
}

func TestService_ConversationMarksRead(t *testing.T) {
	svc, store, notifier, alice, bob := setup(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, alice.ID, bob.ID, "one", ""); err != nil {
		t.Fatalf("send one: %v", err)
	}
	if _, err := svc.Send(ctx, alice.ID, bob.ID, "two", ""); err != nil {
		t.Fatalf("send two: %v", err)
	}
	if _, err := svc.Send(ctx, bob.ID, alice.ID, "reply", ""); err != nil {
		t.Fatalf("send reply: %v", err)
	}

	msgs, err := svc.Conversation(ctx, bob.ID, alice.ID, 0, 0)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "one" || msgs[2].Text != "reply" {
		t.Fatalf("conversation not oldest-first: %s .. %s", msgs[0].Text, msgs[2].Text)
	}

	// Bob read the conversation, so alice's messages flip to read and she
	// gets exactly one receipt.
	unread, err := store.CountUnread(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 0 {
		t.Fatalf("reading should clear unread, got %d", unread)
	}
	if len(notifier.reads) != 1 || notifier.reads[0] != [2]string{bob.ID, alice.ID} {
		t.Fatalf("read receipt not emitted: %+v", notifier.reads)
	}

	// Re-reading is idempotent and emits nothing new.
	if _, err := svc.MarkRead(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(notifier.reads) != 1 {
		t.Fatalf("idempotent mark-read should not re-notify: %+v", notifier.reads)
	}
}

func TestService_Threads(t *testing.T) {
	svc, store, _, alice, bob := setup(t)
	ctx := context.Background()

	carol, err := store.CreateUser(ctx, user.User{Username: "carol", Email: "c@example.com"})
	if err != nil {
		t.Fatalf("create carol: %v", err)
	}

	if _, err := svc.Send(ctx, alice.ID, bob.ID, "hello bob", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.Send(ctx, bob.ID, alice.ID, "hello alice", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.MarkRead(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	long := strings.Repeat("x", message.PreviewLimit+10)
	if _, err := svc.Send(ctx, carol.ID, alice.ID, long, ""); err != nil {
		t.Fatalf("send long: %v", err)
	}

	threads, err := svc.Threads(ctx, alice.ID)
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}

	// Carol's thread is unread so it sorts first despite both being recent.
	if threads[0].PartnerID != carol.ID {
		t.Fatalf("unread thread should sort first, got %s", threads[0].Username)
	}
	if threads[0].UnreadCount != 1 {
		t.Fatalf("expected 1 unread from carol, got %d", threads[0].UnreadCount)
	}
	want := strings.Repeat("x", message.PreviewLimit) + "..."
	if threads[0].LastMessage != want {
		t.Fatalf("preview not truncated: %q", threads[0].LastMessage)
	}

	if threads[1].PartnerID != bob.ID || threads[1].UnreadCount != 0 {
		t.Fatalf("bob's thread should be read: %+v", threads[1])
	}
	if threads[1].LastMessage != "hello alice" {
		t.Fatalf("thread preview should be the latest message: %q", threads[1].LastMessage)
	}
}

func TestMessage_Preview(t *testing.T) {
	if got := (message.Message{Text: "short"}).Preview(); got != "short" {
		t.Fatalf("short text should pass through: %q", got)
	}
	if got := (message.Message{File: "/uploads/a.png"}).Preview(); got != "(attachment)" {
		t.Fatalf("media-only preview: %q", got)
	}
	long := strings.Repeat("é", message.PreviewLimit+1)
	want := strings.Repeat("é", message.PreviewLimit) + "..."
	if got := (message.Message{Text: long}).Preview(); got != want {
		t.Fatalf("rune truncation wrong: %q", got)
	}
}
