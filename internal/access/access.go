// Package access decides what a requester may do with a document.
//
// Decide is a pure function over already-fetched rows: the document (nil when
// the store had no such row) and the share grants stored for it.
package access

import (
	"mdshare/internal/document/model"
	"mdshare/pkg/apperror"
	"mdshare/pkg/metrics"
)

// Level is the access a requester holds on one document.
type Level int

const (
	Denied Level = iota
	PublicRead
	SharedRead
	SharedWrite
	Owner
)

func (l Level) String() string {
	switch l {
	case Owner:
		return "owner"
	case SharedWrite:
		return "shared_write"
	case SharedRead:
		return "shared_read"
	case PublicRead:
		return "public_read"
	default:
		return "denied"
	}
}

func (l Level) CanRead() bool { return l >= PublicRead }

func (l Level) CanWrite() bool { return l == Owner || l == SharedWrite }

// CanManage covers sharing, toggling the public flag and deleting.
func (l Level) CanManage() bool { return l == Owner }

// Decide returns the access level of userID on doc. An empty userID is an
// anonymous requester. A nil doc yields a NotFound error, never Denied.
func Decide(userID string, doc *model.Document, grants []model.ShareGrant) (Level, error) {
	if doc == nil {
		return Denied, apperror.ErrNotFound
	}
	level := decide(userID, doc, grants)
	metrics.AccessDecisions.WithLabelValues(level.String()).Inc()
	return level, nil
}

func decide(userID string, doc *model.Document, grants []model.ShareGrant) Level {
	if userID != "" && userID == doc.OwnerID {
		return Owner
	}
	if userID != "" {
		for _, g := range grants {
			if g.DocumentID != doc.ID || g.SharedWith != userID {
				continue
			}
			if EffectivePermission(g.Permission) == model.PermissionWrite {
				return SharedWrite
			}
			return SharedRead
		}
	}
	if doc.IsPublic {
		return PublicRead
	}
	return Denied
}

// EffectivePermission maps a stored permission to the one enforced.
// Anything other than "write" is treated as read.
func EffectivePermission(p model.Permission) model.Permission {
	if p == model.PermissionWrite {
		return model.PermissionWrite
	}
	return model.PermissionRead
}

// ParsePermission validates share form input. Unlike EffectivePermission it
// rejects unknown values so they never get stored.
func ParsePermission(s string) (model.Permission, error) {
	switch model.Permission(s) {
	case model.PermissionRead, model.PermissionWrite:
		return model.Permission(s), nil
	}
	return "", apperror.ValidationFailed("permission", "Invalid permission. Must be read or write")
}
