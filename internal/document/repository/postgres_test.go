package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"mdshare/internal/document/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

var docCols = []string{"id", "title", "content", "owner_id", "is_public", "created_at", "updated_at"}

func TestGetDocument(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE id = $1`)).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(docCols).AddRow("doc-1", "Notes", nil, "owner-1", true, now, now))

	d, err := repo.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Notes", d.Title)
	assert.Nil(t, d.Content, "NULL content stays nil")
	assert.Equal(t, "", d.Body())
	assert.True(t, d.IsPublic)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentNotFound(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE id = $1`)).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: pqInvalidText})

	_, err := repo.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetDocument(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound, "malformed ids read as missing rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDocumentNoRows(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET title = $1, content = $2`)).
		WithArgs("T", "body", "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDocument(context.Background(), "doc-1", "T", "body")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertShareReportsCreatedAndUpdated(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()
	q := regexp.QuoteMeta(`ON CONFLICT (document_id, shared_with) DO UPDATE SET permission = EXCLUDED.permission`)

	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg(), "doc-1", "user-2", "read").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "inserted"}).AddRow("g1", now, true))
	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg(), "doc-1", "user-2", "write").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "inserted"}).AddRow("g1", now, false))

	g, created, err := repo.UpsertShare(context.Background(), "doc-1", "user-2", model.PermissionRead)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "g1", g.ID)

	g, created, err = repo.UpsertShare(context.Background(), "doc-1", "user-2", model.PermissionWrite)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "g1", g.ID, "second share keeps the same grant row")
	assert.Equal(t, model.PermissionWrite, g.Permission)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSharesIncludesUsernames(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM shared_documents s LEFT JOIN profiles p`)).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "shared_with", "permission", "created_at", "username"}).
			AddRow("g1", "doc-1", "user-2", "write", now, "alice").
			AddRow("g2", "doc-1", "user-3", "read", now, ""))

	grants, err := repo.ListShares(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "alice", grants[0].Username)
	assert.Equal(t, model.PermissionWrite, grants[0].Permission)
	assert.Equal(t, "", grants[1].Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteShareReturnsGrantee(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM shared_documents WHERE id = $1 AND document_id = $2 RETURNING shared_with`)).
		WithArgs("g1", "doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"shared_with"}).AddRow("user-2"))

	who, err := repo.DeleteShare(context.Background(), "doc-1", "g1")
	require.NoError(t, err)
	assert.Equal(t, "user-2", who)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProfileConflict(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO profiles (id, username)`)).
		WithArgs("user-1", "demo").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.CreateProfile(context.Background(), &model.Profile{ID: "user-1", Username: "demo"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserIDByEmail(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM auth.users WHERE email = $1`)).
		WithArgs("demo@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM auth.users WHERE email = $1`)).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM auth.users WHERE email = $1`)).
		WithArgs("down@example.com").
		WillReturnError(errors.New("connection reset"))

	id, err := repo.FindUserIDByEmail(context.Background(), "demo@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	_, err = repo.FindUserIDByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.FindUserIDByEmail(context.Background(), "down@example.com")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
