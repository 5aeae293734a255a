package app

import (
	"context"

	"github.com/verse-social/verse/internal/app/auth"
	"github.com/verse-social/verse/internal/app/gateway"
	challengesvc "github.com/verse-social/verse/internal/app/services/challenges"
	messagesvc "github.com/verse-social/verse/internal/app/services/messages"
	postsvc "github.com/verse-social/verse/internal/app/services/posts"
	usersvc "github.com/verse-social/verse/internal/app/services/users"
	"github.com/verse-social/verse/internal/app/storage"
	"github.com/verse-social/verse/internal/app/storage/memory"
	"github.com/verse-social/verse/internal/app/system"
	"github.com/verse-social/verse/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users      storage.UserStore
	Posts      storage.PostStore
	Messages   storage.MessageStore
	Challenges storage.ChallengeStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Tokens     *auth.Manager
	Users      *usersvc.Service
	Posts      *postsvc.Service
	Messages   *messagesvc.Service
	Challenges *challengesvc.Service
	Gateway    *gateway.Gateway
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, tokens *auth.Manager, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Posts == nil {
		stores.Posts = mem
	}
	if stores.Messages == nil {
		stores.Messages = mem
	}
	if stores.Challenges == nil {
		stores.Challenges = mem
	}

	gw := gateway.New(tokens, log)
	messageService := messagesvc.New(stores.Messages, stores.Users, log)
	messageService.SetNotifier(gw)

	application := &Application{
		manager:    system.NewManager(log),
		log:        log,
		Tokens:     tokens,
		Users:      usersvc.New(stores.Users, tokens, log),
		Posts:      postsvc.New(stores.Posts, stores.Users, log),
		Messages:   messageService,
		Challenges: challengesvc.New(stores.Challenges, stores.Users, log),
		Gateway:    gw,
	}
	application.manager.Register(gw)
	return application, nil
}

// Start launches managed services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop shuts managed services down in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
