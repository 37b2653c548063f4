package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mdshare/internal/access"
	"mdshare/internal/autosave"
	"mdshare/internal/document/model"
	"mdshare/internal/document/repository"
	"mdshare/pkg/apperror"
	"mdshare/pkg/logger"
	"mdshare/pkg/metrics"

	"github.com/google/uuid"
)

const maxTitleLen = 255

// Sessions is the editor session registry the service tells about deleted
// documents and revoked grants.
type Sessions interface {
	RemoveDocument(docID string)
	DisconnectUser(docID, userID string)
}

type DocumentService struct {
	Repo     repository.Store
	autosave *autosave.Debouncer
	sessions Sessions
}

func NewDocumentService(repo repository.Store, debounce time.Duration) *DocumentService {
	s := &DocumentService{Repo: repo}
	s.autosave = autosave.NewDebouncer(debounce, s.persist)
	return s
}

// SetSessions attaches the editor hub once it exists; the hub itself needs
// the service, so it cannot be passed to the constructor.
func (s *DocumentService) SetSessions(sessions Sessions) {
	s.sessions = sessions
}

// View is a document as one requester sees it.
type View struct {
	Document      *model.Document
	Level         access.Level
	OwnerUsername string
}

type ShareResult struct {
	Grant   *model.ShareGrant
	Created bool
	Message string
}

// resolve loads the document and the requester's grant and runs the access
// decision. Anonymous requesters never have grants.
func (s *DocumentService) resolve(ctx context.Context, userID, docID string) (*model.Document, access.Level, error) {
	doc, err := s.Repo.GetDocument(ctx, docID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, access.Denied, apperror.NotFound("document", docID)
	}
	if err != nil {
		return nil, access.Denied, apperror.StoreFailure("load document", err)
	}

	var grants []model.ShareGrant
	if userID != "" && userID != doc.OwnerID {
		g, err := s.Repo.GetShare(ctx, docID, userID)
		switch {
		case err == nil:
			grants = append(grants, *g)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, access.Denied, apperror.StoreFailure("load share", err)
		}
	}

	level, err := access.Decide(userID, doc, grants)
	if err != nil {
		return nil, access.Denied, apperror.NotFound("document", docID)
	}
	return doc, level, nil
}

func (s *DocumentService) requireRead(ctx context.Context, userID, docID string) (*model.Document, access.Level, error) {
	doc, level, err := s.resolve(ctx, userID, docID)
	if err != nil {
		return nil, level, err
	}
	if !level.CanRead() {
		return nil, level, apperror.Denied("document", docID)
	}
	return doc, level, nil
}

func (s *DocumentService) requireWrite(ctx context.Context, userID, docID string) (*model.Document, access.Level, error) {
	doc, level, err := s.requireRead(ctx, userID, docID)
	if err != nil {
		return nil, level, err
	}
	if !level.CanWrite() {
		return doc, level, apperror.ReadOnly(docID)
	}
	return doc, level, nil
}

// requireOwner hides documents the caller cannot read and rejects readers
// that are not the owner.
func (s *DocumentService) requireOwner(ctx context.Context, userID, docID, action string) (*model.Document, error) {
	doc, level, err := s.requireRead(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if !level.CanManage() {
		return nil, apperror.NotOwner(action)
	}
	return doc, nil
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.ValidationFailed("title", "Title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", apperror.ValidationFailed("title", fmt.Sprintf("Title must be at most %d characters", maxTitleLen))
	}
	return title, nil
}

func (s *DocumentService) Dashboard(ctx context.Context, userID string) (*model.DashboardResponse, error) {
	owned, err := s.Repo.ListOwnedDocuments(ctx, userID)
	if err != nil {
		return nil, apperror.StoreFailure("list documents", err)
	}
	shared, err := s.Repo.ListSharedWith(ctx, userID)
	if err != nil {
		return nil, apperror.StoreFailure("list shared documents", err)
	}
	for i := range shared {
		shared[i].Permission = access.EffectivePermission(shared[i].Permission)
	}
	return &model.DashboardResponse{Owned: owned, Shared: shared}, nil
}

func (s *DocumentService) CreateDocument(ctx context.Context, userID, title, content string) (*model.Document, error) {
	title, err := validTitle(title)
	if err != nil {
		return nil, err
	}
	doc := &model.Document{
		ID:      uuid.NewString(),
		Title:   title,
		Content: &content,
		OwnerID: userID,
	}
	if err := s.Repo.CreateDocument(ctx, doc); err != nil {
		return nil, apperror.StoreFailure("create document", err)
	}
	logger.Sugar.Infof("User %s created document %s", userID, doc.ID)
	return doc, nil
}

// OpenDocument returns the document for reading. A requester without access
// gets the same answer as for a missing document.
func (s *DocumentService) OpenDocument(ctx context.Context, userID, docID string) (*View, error) {
	doc, level, err := s.requireRead(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, doc, level), nil
}

// OpenEditor is OpenDocument for editing. Readers get ErrReadOnly.
func (s *DocumentService) OpenEditor(ctx context.Context, userID, docID string) (*View, error) {
	doc, level, err := s.requireWrite(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, doc, level), nil
}

func (s *DocumentService) view(ctx context.Context, doc *model.Document, level access.Level) *View {
	v := &View{Document: doc, Level: level}
	if p, err := s.Repo.GetProfile(ctx, doc.OwnerID); err == nil {
		v.OwnerUsername = p.Username
	}
	return v
}

// ScheduleSave queues an edit; it is written once the document has been
// quiet for the debounce period.
func (s *DocumentService) ScheduleSave(ctx context.Context, userID, docID string, edit model.Edit) error {
	if _, _, err := s.requireWrite(ctx, userID, docID); err != nil {
		return err
	}
	title, err := validTitle(edit.Title)
	if err != nil {
		return err
	}
	edit.Title = title
	edit.UserID = userID
	s.autosave.Schedule(docID, edit)
	return nil
}

// SaveDocument writes an edit now. A pending debounced edit of the document
// is dropped and an in-flight one finishes first.
func (s *DocumentService) SaveDocument(ctx context.Context, userID, docID string, edit model.Edit) error {
	if _, _, err := s.requireWrite(ctx, userID, docID); err != nil {
		return err
	}
	title, err := validTitle(edit.Title)
	if err != nil {
		return err
	}
	edit.Title = title
	edit.UserID = userID
	return s.autosave.Flush(ctx, docID, &edit)
}

// FlushPending writes the pending edit of docID, if any. Called when the last
// editor of a document disconnects.
func (s *DocumentService) FlushPending(ctx context.Context, docID string) error {
	err := s.autosave.Flush(ctx, docID, nil)
	s.autosave.Forget(docID)
	return err
}

// persist writes an edit. Access is checked again at write time: a grant
// revoked or downgraded while the edit waited out its quiet period rejects it.
func (s *DocumentService) persist(ctx context.Context, docID string, edit model.Edit) error {
	if edit.UserID != "" {
		if _, _, err := s.requireWrite(ctx, edit.UserID, docID); err != nil {
			return err
		}
	}
	err := s.Repo.UpdateDocument(ctx, docID, edit.Title, edit.Content)
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound("document", docID)
	}
	if err != nil {
		return apperror.StoreFailure("save document", err)
	}
	return nil
}

func (s *DocumentService) DeleteDocument(ctx context.Context, userID, docID string) error {
	if _, err := s.requireOwner(ctx, userID, docID, "delete this document"); err != nil {
		return err
	}
	s.autosave.Cancel(docID)
	err := s.Repo.DeleteDocument(ctx, docID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound("document", docID)
	}
	if err != nil {
		return apperror.StoreFailure("delete document", err)
	}
	s.autosave.Forget(docID)
	if s.sessions != nil {
		s.sessions.RemoveDocument(docID)
	}
	logger.Sugar.Infof("User %s deleted document %s", userID, docID)
	return nil
}

// ShareDocument grants targetUsername access to the document, or updates
// the permission of the grant they already have.
func (s *DocumentService) ShareDocument(ctx context.Context, userID, docID, targetUsername, permission string) (*ShareResult, error) {
	perm, err := access.ParsePermission(permission)
	if err != nil {
		return nil, err
	}
	targetUsername = strings.TrimSpace(targetUsername)
	if targetUsername == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	doc, err := s.requireOwner(ctx, userID, docID, "share this document")
	if err != nil {
		return nil, err
	}

	target, err := s.Repo.FindProfileByUsername(ctx, targetUsername)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.UserNotFound()
	}
	if err != nil {
		return nil, apperror.StoreFailure("find user", err)
	}
	if target.ID == doc.OwnerID {
		return nil, apperror.ValidationFailed("username", "You already own this document")
	}

	grant, created, err := s.Repo.UpsertShare(ctx, docID, target.ID, perm)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("document", docID)
	}
	if err != nil {
		return nil, apperror.StoreFailure("share document", err)
	}
	grant.Username = target.Username

	res := &ShareResult{Grant: grant, Created: created}
	if created {
		metrics.ShareUpserts.WithLabelValues("created").Inc()
		res.Message = fmt.Sprintf("Document shared with %s", targetUsername)
	} else {
		metrics.ShareUpserts.WithLabelValues("updated").Inc()
		res.Message = fmt.Sprintf("Updated sharing permissions for %s", targetUsername)
		// A downgrade to read must end any open editor of the grantee.
		if perm == model.PermissionRead && s.sessions != nil {
			s.sessions.DisconnectUser(docID, target.ID)
		}
	}
	logger.Sugar.Infof("Document %s shared with %s (%s)", docID, target.ID, perm)
	return res, nil
}

func (s *DocumentService) RevokeShare(ctx context.Context, userID, docID, shareID string) error {
	if _, err := s.requireOwner(ctx, userID, docID, "manage sharing"); err != nil {
		return err
	}
	grantee, err := s.Repo.DeleteShare(ctx, docID, shareID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.ShareNotFound()
	}
	if err != nil {
		return apperror.StoreFailure("remove share", err)
	}
	if s.sessions != nil {
		s.sessions.DisconnectUser(docID, grantee)
	}
	return nil
}

// ListShares returns the document's grants with grantee usernames. Owner only.
func (s *DocumentService) ListShares(ctx context.Context, userID, docID string) (*model.Document, []model.ShareGrant, error) {
	doc, err := s.requireOwner(ctx, userID, docID, "manage sharing")
	if err != nil {
		return nil, nil, err
	}
	grants, err := s.Repo.ListShares(ctx, docID)
	if err != nil {
		return nil, nil, apperror.StoreFailure("list shares", err)
	}
	for i := range grants {
		grants[i].Permission = access.EffectivePermission(grants[i].Permission)
	}
	return doc, grants, nil
}

// SetPublic sets the public flag and returns the confirmation message.
func (s *DocumentService) SetPublic(ctx context.Context, userID, docID string, public bool) (string, error) {
	if _, err := s.requireOwner(ctx, userID, docID, "change visibility"); err != nil {
		return "", err
	}
	return s.setPublic(ctx, docID, public)
}

// TogglePublic flips the public flag.
func (s *DocumentService) TogglePublic(ctx context.Context, userID, docID string) (string, error) {
	doc, err := s.requireOwner(ctx, userID, docID, "change visibility")
	if err != nil {
		return "", err
	}
	return s.setPublic(ctx, docID, !doc.IsPublic)
}

func (s *DocumentService) setPublic(ctx context.Context, docID string, public bool) (string, error) {
	err := s.Repo.SetPublic(ctx, docID, public)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperror.NotFound("document", docID)
	}
	if err != nil {
		return "", apperror.StoreFailure("update visibility", err)
	}
	if public {
		return "Document is now public", nil
	}
	return "Document is now private", nil
}

// Username returns the username of userID, "" when there is no profile.
func (s *DocumentService) Username(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	p, err := s.Repo.GetProfile(ctx, userID)
	if err != nil {
		return ""
	}
	return p.Username
}

// Close writes every pending edit. Call it after the HTTP server stopped.
func (s *DocumentService) Close(ctx context.Context) error {
	return s.autosave.FlushAll(ctx)
}
