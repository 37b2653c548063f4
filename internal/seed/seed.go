// Package seed provisions the demo account and its sample documents.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"mdshare/config"
	"mdshare/internal/document/model"
	"mdshare/internal/document/repository"
	"mdshare/pkg/logger"
)

//go:embed content/welcome.md
var welcomeContent string

//go:embed content/cheatsheet.md
var cheatSheetContent string

const (
	WelcomeTitle    = "Welcome to MarkdownEditor"
	CheatSheetTitle = "Markdown Cheat Sheet"
)

type Store interface {
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
	CreateProfile(ctx context.Context, p *model.Profile) error
	CreateDocument(ctx context.Context, doc *model.Document) error
}

// UserCreator registers an account with the identity provider.
type UserCreator interface {
	CreateUser(ctx context.Context, email, password string) (string, error)
}

type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Initializer struct {
	store Store
	users UserCreator
	demo  config.DemoConfig
	mu    sync.Mutex
}

func NewInitializer(store Store, users UserCreator, demo config.DemoConfig) *Initializer {
	return &Initializer{store: store, users: users, demo: demo}
}

// Run creates the demo user, profile and documents unless the demo user
// already exists. Running it again is a no-op. On failure the returned
// error carries the cause; the Result never does.
func (i *Initializer) Run(ctx context.Context) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, err := i.store.FindUserIDByEmail(ctx, i.demo.Email)
	if err == nil {
		logger.Sugar.Info("Demo user already exists")
		return Result{Success: true, Message: "Demo user already exists"}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return i.fail(fmt.Errorf("look up demo user: %w", err))
	}

	userID, err := i.users.CreateUser(ctx, i.demo.Email, i.demo.Password)
	if err != nil {
		return i.fail(fmt.Errorf("create demo user: %w", err))
	}
	if err := i.store.CreateProfile(ctx, &model.Profile{ID: userID, Username: i.demo.Username}); err != nil {
		return i.fail(fmt.Errorf("create demo profile: %w", err))
	}

	docs := []model.Document{
		{Title: WelcomeTitle, Content: &welcomeContent, OwnerID: userID, IsPublic: false},
		{Title: CheatSheetTitle, Content: &cheatSheetContent, OwnerID: userID, IsPublic: true},
	}
	for _, d := range docs {
		if err := i.store.CreateDocument(ctx, &d); err != nil {
			return i.fail(fmt.Errorf("create sample document %q: %w", d.Title, err))
		}
	}

	logger.Sugar.Infof("Demo user %s created with id %s", i.demo.Email, userID)
	return Result{Success: true, Message: "Demo user created successfully"}, nil
}

func (i *Initializer) fail(err error) (Result, error) {
	logger.Sugar.Errorf("Error creating demo user: %v", err)
	return Result{Success: false, Message: "Failed to create demo user"}, err
}
