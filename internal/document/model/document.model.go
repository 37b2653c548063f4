package model

import (
	"time"
)

// Permission is the level stored on a share grant.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   *string   `json:"content"` // nullable column
	OwnerID   string    `json:"owner_id"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Body returns the content, or "" when the column is NULL.
func (d *Document) Body() string {
	if d.Content == nil {
		return ""
	}
	return *d.Content
}

type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ShareGrant struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	SharedWith string     `json:"shared_with"`
	Permission Permission `json:"permission"`
	CreatedAt  time.Time  `json:"created_at"`
	// Username of the grantee, filled by listing queries only.
	Username string `json:"username,omitempty"`
}

// SharedDocument is a dashboard row for a document someone shared with the caller.
type SharedDocument struct {
	Document   Document   `json:"document"`
	Permission Permission `json:"permission"`
}

// Edit is one editor snapshot: the full title and content at a point in time.
type Edit struct {
	UserID  string `json:"-"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type CreateDocRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type CreateDocResponse struct {
	DocID string `json:"document_id"`
}

type SaveDocRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ShareRequest struct {
	Username   string `json:"username"`
	Permission string `json:"permission"`
}

type ShareResponse struct {
	Grant   ShareGrant `json:"grant"`
	Created bool       `json:"created"`
	Message string     `json:"message"`
}

type PublicRequest struct {
	IsPublic bool `json:"is_public"`
}

type DocumentResponse struct {
	Document
	Access        string `json:"access"`
	OwnerUsername string `json:"owner_username,omitempty"`
}

type DashboardResponse struct {
	Owned  []Document       `json:"owned"`
	Shared []SharedDocument `json:"shared"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
