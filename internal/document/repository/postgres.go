package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mdshare/internal/document/model"
	"mdshare/pkg/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	// invalid_text_representation, raised when an id is not a valid uuid.
	pqInvalidText     = "22P02"
	pqUniqueViolation = "23505"
)

type PostgresRepository struct {
	DB *sql.DB
}

var _ Store = (*PostgresRepository)(nil)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

// notFound folds "no rows" and malformed ids into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInvalidText {
		return ErrNotFound
	}
	return err
}

const documentColumns = `id, title, content, owner_id, is_public, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, extra ...any) (*model.Document, error) {
	var d model.Document
	var content sql.NullString
	dest := append([]any{&d.ID, &d.Title, &content, &d.OwnerID, &d.IsPublic, &d.CreatedAt, &d.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if content.Valid {
		d.Content = &content.String
	}
	return &d, nil
}

func (r *PostgresRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO documents (id, title, content, owner_id, is_public) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		doc.ID, doc.Title, doc.Content, doc.OwnerID, doc.IsPublic,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
	}
	return err
}

func (r *PostgresRepository) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	d, err := scanDocument(r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		err = notFound(err)
		if !errors.Is(err, ErrNotFound) {
			logger.Sugar.Errorf("Failed to get doc %s: %v", id, err)
		}
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepository) UpdateDocument(ctx context.Context, id, title, content string) error {
	result, err := r.DB.ExecContext(ctx,
		`UPDATE documents SET title = $1, content = $2, updated_at = NOW() WHERE id = $3`, title, content, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for doc %s: %v", id, err)
		return notFound(err)
	}
	return requireRow(result)
}

func (r *PostgresRepository) SetPublic(ctx context.Context, id string, public bool) error {
	result, err := r.DB.ExecContext(ctx,
		`UPDATE documents SET is_public = $1, updated_at = NOW() WHERE id = $2`, public, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to set is_public for doc %s: %v", id, err)
		return notFound(err)
	}
	return requireRow(result)
}

// DeleteDocument relies on ON DELETE CASCADE to drop the document's grants.
func (r *PostgresRepository) DeleteDocument(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", id, err)
		return notFound(err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListOwnedDocuments(ctx context.Context, ownerID string) ([]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", ownerID, err)
		return nil, err
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepository) ListSharedWith(ctx context.Context, userID string) ([]model.SharedDocument, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT d.id, d.title, d.content, d.owner_id, d.is_public, d.created_at, d.updated_at, s.permission
		FROM shared_documents s JOIN documents d ON d.id = s.document_id
		WHERE s.shared_with = $1
		ORDER BY d.updated_at DESC`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents shared with %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	shared := []model.SharedDocument{}
	for rows.Next() {
		var perm string
		d, err := scanDocument(rows, &perm)
		if err != nil {
			return nil, fmt.Errorf("scan shared document: %w", err)
		}
		shared = append(shared, model.SharedDocument{Document: *d, Permission: model.Permission(perm)})
	}
	return shared, rows.Err()
}

func (r *PostgresRepository) GetShare(ctx context.Context, docID, userID string) (*model.ShareGrant, error) {
	var g model.ShareGrant
	var perm string
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, document_id, shared_with, permission, created_at FROM shared_documents WHERE document_id = $1 AND shared_with = $2`,
		docID, userID,
	).Scan(&g.ID, &g.DocumentID, &g.SharedWith, &perm, &g.CreatedAt)
	if err != nil {
		err = notFound(err)
		if !errors.Is(err, ErrNotFound) {
			logger.Sugar.Errorf("Failed to get share of doc %s for %s: %v", docID, userID, err)
		}
		return nil, err
	}
	g.Permission = model.Permission(perm)
	return &g, nil
}

func (r *PostgresRepository) ListShares(ctx context.Context, docID string) ([]model.ShareGrant, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT s.id, s.document_id, s.shared_with, s.permission, s.created_at, COALESCE(p.username, '')
		FROM shared_documents s LEFT JOIN profiles p ON p.id = s.shared_with
		WHERE s.document_id = $1
		ORDER BY s.created_at ASC`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list shares for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	grants := []model.ShareGrant{}
	for rows.Next() {
		var g model.ShareGrant
		var perm string
		if err := rows.Scan(&g.ID, &g.DocumentID, &g.SharedWith, &perm, &g.CreatedAt, &g.Username); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		g.Permission = model.Permission(perm)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// UpsertShare needs the unique index on (document_id, shared_with).
// xmax is 0 only for a freshly inserted row version.
func (r *PostgresRepository) UpsertShare(ctx context.Context, docID, userID string, perm model.Permission) (*model.ShareGrant, bool, error) {
	g := model.ShareGrant{DocumentID: docID, SharedWith: userID, Permission: perm}
	var created bool
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO shared_documents (id, document_id, shared_with, permission) VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id, shared_with) DO UPDATE SET permission = EXCLUDED.permission
		RETURNING id, created_at, (xmax = 0)`,
		uuid.NewString(), docID, userID, string(perm),
	).Scan(&g.ID, &g.CreatedAt, &created)
	if err != nil {
		logger.Sugar.Errorf("Failed to share doc %s with %s: %v", docID, userID, err)
		return nil, false, err
	}
	return &g, created, nil
}

func (r *PostgresRepository) DeleteShare(ctx context.Context, docID, shareID string) (string, error) {
	var sharedWith string
	err := r.DB.QueryRowContext(ctx,
		`DELETE FROM shared_documents WHERE id = $1 AND document_id = $2 RETURNING shared_with`, shareID, docID,
	).Scan(&sharedWith)
	if err != nil {
		err = notFound(err)
		if !errors.Is(err, ErrNotFound) {
			logger.Sugar.Errorf("Failed to delete share %s: %v", shareID, err)
		}
		return "", err
	}
	return sharedWith, nil
}

func (r *PostgresRepository) scanProfile(row *sql.Row, key string) (*model.Profile, error) {
	var p model.Profile
	var username, avatar sql.NullString
	if err := row.Scan(&p.ID, &username, &avatar, &p.CreatedAt, &p.UpdatedAt); err != nil {
		err = notFound(err)
		if !errors.Is(err, ErrNotFound) {
			logger.Sugar.Errorf("Failed to get profile %s: %v", key, err)
		}
		return nil, err
	}
	p.Username = username.String
	p.AvatarURL = avatar.String
	return &p, nil
}

func (r *PostgresRepository) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	return r.scanProfile(r.DB.QueryRowContext(ctx,
		`SELECT id, username, avatar_url, created_at, updated_at FROM profiles WHERE id = $1`, id), id)
}

func (r *PostgresRepository) FindProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	return r.scanProfile(r.DB.QueryRowContext(ctx,
		`SELECT id, username, avatar_url, created_at, updated_at FROM profiles WHERE username = $1`, username), username)
}

func (r *PostgresRepository) CreateProfile(ctx context.Context, p *model.Profile) error {
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO profiles (id, username) VALUES ($1, $2) RETURNING created_at, updated_at`, p.ID, p.Username,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrConflict
		}
		logger.Sugar.Errorf("Failed to create profile %s: %v", p.ID, err)
	}
	return err
}

// FindUserIDByEmail reads the platform's auth schema; the database role
// needs SELECT on auth.users.
func (r *PostgresRepository) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM auth.users WHERE email = $1`, email).Scan(&userID)
	if err != nil {
		err = notFound(err)
		if !errors.Is(err, ErrNotFound) {
			logger.Sugar.Errorf("Failed to get user by email %s: %v", email, err)
		}
		return "", err
	}
	return userID, nil
}
