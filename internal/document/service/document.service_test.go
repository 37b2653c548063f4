package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mdshare/internal/access"
	"mdshare/internal/document/model"
	"mdshare/internal/document/repository"
	"mdshare/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mu           sync.Mutex
	removed      []string
	disconnected []string // docID/userID
}

func (f *fakeSessions) RemoveDocument(docID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, docID)
}

func (f *fakeSessions) DisconnectUser(docID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, docID+"/"+userID)
}

type fixture struct {
	svc      *DocumentService
	repo     *repository.MemoryRepository
	sessions *fakeSessions
	owner    string
	alice    string
	bob      string
	doc      *model.Document
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	f := &fixture{
		repo:     repo,
		sessions: &fakeSessions{},
		svc:      NewDocumentService(repo, time.Hour),
	}
	f.svc.SetSessions(f.sessions)

	for _, u := range []struct {
		id   *string
		name string
	}{{&f.owner, "olivia"}, {&f.alice, "alice"}, {&f.bob, "bob"}} {
		*u.id = repo.AddUser(u.name + "@example.com")
		require.NoError(t, repo.CreateProfile(ctx, &model.Profile{ID: *u.id, Username: u.name}))
	}

	doc, err := f.svc.CreateDocument(ctx, f.owner, "  Plans  ", "# plans")
	require.NoError(t, err)
	f.doc = doc
	return f
}

func TestCreateDocumentTrimsAndValidatesTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, "Plans", f.doc.Title)
	assert.False(t, f.doc.IsPublic, "new documents are private")

	_, err := f.svc.CreateDocument(ctx, f.owner, "   ", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.CreateDocument(ctx, f.owner, strings.Repeat("é", maxTitleLen+1), "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.CreateDocument(ctx, f.owner, strings.Repeat("é", maxTitleLen), "")
	assert.NoError(t, err)
}

func TestReadShareCanViewButNotEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "read")
	require.NoError(t, err)

	v, err := f.svc.OpenDocument(ctx, f.alice, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, access.SharedRead, v.Level)
	assert.Equal(t, "olivia", v.OwnerUsername)

	_, err = f.svc.OpenEditor(ctx, f.alice, f.doc.ID)
	assert.ErrorIs(t, err, apperror.ErrReadOnly)

	err = f.svc.SaveDocument(ctx, f.alice, f.doc.ID, model.Edit{Title: "Hijack", Content: "x"})
	assert.ErrorIs(t, err, apperror.ErrReadOnly)
	err = f.svc.ScheduleSave(ctx, f.alice, f.doc.ID, model.Edit{Title: "Hijack", Content: "x"})
	assert.ErrorIs(t, err, apperror.ErrReadOnly)
}

func TestPrivateDocumentHiddenLikeMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, errPrivate := f.svc.OpenDocument(ctx, "", f.doc.ID)
	_, errMissing := f.svc.OpenDocument(ctx, "", "does-not-exist")
	assert.True(t, apperror.IsHidden(errPrivate))
	assert.True(t, apperror.IsHidden(errMissing))

	_, err := f.svc.OpenDocument(ctx, f.bob, f.doc.ID)
	assert.True(t, apperror.IsHidden(err))
}

func TestTogglePublicOpensDocumentToAnonymous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.TogglePublic(ctx, f.owner, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Document is now public", msg)

	v, err := f.svc.OpenDocument(ctx, "", f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, access.PublicRead, v.Level)
	_, err = f.svc.OpenEditor(ctx, "", f.doc.ID)
	assert.ErrorIs(t, err, apperror.ErrReadOnly)

	msg, err = f.svc.SetPublic(ctx, f.owner, f.doc.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Document is now private", msg)
	_, err = f.svc.OpenDocument(ctx, "", f.doc.ID)
	assert.True(t, apperror.IsHidden(err))
}

func TestShareTwiceUpdatesSingleGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "read")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Document shared with alice", res.Message)

	res, err = f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "write")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "Updated sharing permissions for alice", res.Message)

	_, grants, err := f.svc.ListShares(ctx, f.owner, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, model.PermissionWrite, grants[0].Permission)
	assert.Equal(t, "alice", grants[0].Username)

	v, err := f.svc.OpenEditor(ctx, f.alice, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, access.SharedWrite, v.Level)
}

func TestDowngradeDisconnectsEditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "write")
	require.NoError(t, err)
	_, err = f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "read")
	require.NoError(t, err)

	assert.Equal(t, []string{f.doc.ID + "/" + f.alice}, f.sessions.disconnected)
}

func TestShareRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "write")
	require.NoError(t, err)

	tests := []struct {
		name   string
		caller string
		target string
		perm   string
		want   error
	}{
		{"invalid permission", f.owner, "bob", "admin", apperror.ErrValidation},
		{"empty username", f.owner, "  ", "read", apperror.ErrValidation},
		{"unknown user", f.owner, "ghost", "read", apperror.ErrUserNotFound},
		{"share with self", f.owner, "olivia", "read", apperror.ErrValidation},
		{"writer is not owner", f.alice, "bob", "read", apperror.ErrNotOwner},
		{"stranger sees nothing", f.bob, "alice", "read", apperror.ErrDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ShareDocument(ctx, tt.caller, f.doc.ID, tt.target, tt.perm)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = f.svc.ShareDocument(ctx, f.owner, "missing", "bob", "read")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRevokeShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "write")
	require.NoError(t, err)

	err = f.svc.RevokeShare(ctx, f.alice, f.doc.ID, res.Grant.ID)
	assert.ErrorIs(t, err, apperror.ErrNotOwner)

	require.NoError(t, f.svc.RevokeShare(ctx, f.owner, f.doc.ID, res.Grant.ID))
	assert.Contains(t, f.sessions.disconnected, f.doc.ID+"/"+f.alice)

	_, err = f.svc.OpenDocument(ctx, f.alice, f.doc.ID)
	assert.True(t, apperror.IsHidden(err))

	err = f.svc.RevokeShare(ctx, f.owner, f.doc.ID, res.Grant.ID)
	assert.ErrorIs(t, err, apperror.ErrShareNotFound)
	assert.False(t, apperror.IsHidden(err), "the owner is told the share is gone, not the document")
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "write")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteDocument(ctx, f.alice, f.doc.ID), apperror.ErrNotOwner)

	require.NoError(t, f.svc.ScheduleSave(ctx, f.owner, f.doc.ID, model.Edit{Title: "Plans", Content: "late"}))
	require.NoError(t, f.svc.DeleteDocument(ctx, f.owner, f.doc.ID))
	assert.Equal(t, []string{f.doc.ID}, f.sessions.removed)

	dash, err := f.svc.Dashboard(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, dash.Shared)

	// the cancelled autosave must not resurrect anything
	require.NoError(t, f.svc.Close(ctx))
	_, err = f.repo.GetDocument(ctx, f.doc.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "read")
	require.NoError(t, err)

	dash, err := f.svc.Dashboard(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, dash.Owned, 1)
	assert.Empty(t, dash.Shared)

	dash, err = f.svc.Dashboard(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, dash.Owned)
	require.Len(t, dash.Shared, 1)
	assert.Equal(t, model.PermissionRead, dash.Shared[0].Permission)
	assert.Equal(t, f.doc.ID, dash.Shared[0].Document.ID)
}

func TestScheduledEditsWrittenOnClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []string{"a", "ab", "abc"} {
		require.NoError(t, f.svc.ScheduleSave(ctx, f.owner, f.doc.ID, model.Edit{Title: "Plans", Content: c}))
	}
	d, err := f.repo.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "# plans", d.Body(), "debounced edits are not written yet")

	require.NoError(t, f.svc.Close(ctx))
	d, err = f.repo.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", d.Body())
}

func TestSaveDocumentWinsOverPendingEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "write")
	require.NoError(t, err)

	require.NoError(t, f.svc.ScheduleSave(ctx, f.alice, f.doc.ID, model.Edit{Title: "Plans", Content: "draft"}))
	require.NoError(t, f.svc.SaveDocument(ctx, f.alice, f.doc.ID, model.Edit{Title: " Final ", Content: "final"}))
	require.NoError(t, f.svc.FlushPending(ctx, f.doc.ID))

	d, err := f.repo.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", d.Body())
	assert.Equal(t, "Final", d.Title)

	err = f.svc.SaveDocument(ctx, f.alice, f.doc.ID, model.Edit{Title: "", Content: "x"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestPendingEditDroppedAfterRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "write")
	require.NoError(t, err)

	require.NoError(t, f.svc.ScheduleSave(ctx, f.alice, f.doc.ID, model.Edit{Title: "Plans", Content: "alice was here"}))
	require.NoError(t, f.svc.RevokeShare(ctx, f.owner, f.doc.ID, res.Grant.ID))

	err = f.svc.FlushPending(ctx, f.doc.ID)
	assert.True(t, apperror.IsHidden(err))
	d, err := f.repo.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "# plans", d.Body())
}

func TestPendingEditDroppedAfterDowngrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "write")
	require.NoError(t, err)

	require.NoError(t, f.svc.ScheduleSave(ctx, f.alice, f.doc.ID, model.Edit{Title: "Plans", Content: "late edit"}))
	_, err = f.svc.ShareDocument(ctx, f.owner, f.doc.ID, "alice", "read")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Close(ctx), apperror.ErrReadOnly)
	d, err := f.repo.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "# plans", d.Body())

	// the owner's own pending edit still lands
	require.NoError(t, f.svc.ScheduleSave(ctx, f.owner, f.doc.ID, model.Edit{Title: "Plans", Content: "owner edit"}))
	require.NoError(t, f.svc.FlushPending(ctx, f.doc.ID))
	d, err = f.repo.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner edit", d.Body())
}

type failingStore struct {
	*repository.MemoryRepository
}

func (failingStore) ListOwnedDocuments(context.Context, string) ([]model.Document, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsWrapped(t *testing.T) {
	svc := NewDocumentService(failingStore{repository.NewMemoryRepository()}, time.Hour)
	_, err := svc.Dashboard(context.Background(), "user")
	assert.ErrorIs(t, err, apperror.ErrStoreFailure)
	assert.NotContains(t, err.(*apperror.AppError).Message, "connection refused")
}
