package repository

import (
	"context"
	"errors"

	"mdshare/internal/document/model"
)

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write would break a unique constraint.
	ErrConflict = errors.New("record conflict")
)

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	UpdateDocument(ctx context.Context, id, title, content string) error
	SetPublic(ctx context.Context, id string, public bool) error
	DeleteDocument(ctx context.Context, id string) error
	ListOwnedDocuments(ctx context.Context, ownerID string) ([]model.Document, error)
	ListSharedWith(ctx context.Context, userID string) ([]model.SharedDocument, error)
}

type ShareStore interface {
	GetShare(ctx context.Context, docID, userID string) (*model.ShareGrant, error)
	ListShares(ctx context.Context, docID string) ([]model.ShareGrant, error)
	// UpsertShare inserts a grant for (docID, userID) or overwrites the
	// permission of the existing one. created reports which happened.
	UpsertShare(ctx context.Context, docID, userID string, perm model.Permission) (grant *model.ShareGrant, created bool, err error)
	// DeleteShare removes a grant of docID and returns the grantee.
	DeleteShare(ctx context.Context, docID, shareID string) (sharedWith string, err error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	FindProfileByUsername(ctx context.Context, username string) (*model.Profile, error)
	CreateProfile(ctx context.Context, p *model.Profile) error
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}

// Store is everything the application reads and writes on the platform database.
type Store interface {
	DocumentStore
	ShareStore
	ProfileStore
}
