package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"mdshare/internal/document/model"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Store. It mirrors the Postgres
// constraints that matter to callers: one grant per (document, user), grants
// removed with their document, unique usernames.
type MemoryRepository struct {
	mu       sync.RWMutex
	docs     map[string]*model.Document
	shares   map[string]*model.ShareGrant // by grant id
	profiles map[string]*model.Profile
	users    map[string]string // email -> user id
	now      func() time.Time
}

var _ Store = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs:     make(map[string]*model.Document),
		shares:   make(map[string]*model.ShareGrant),
		profiles: make(map[string]*model.Profile),
		users:    make(map[string]string),
		now:      time.Now,
	}
}

// AddUser registers an identity-provider account and returns its id.
func (m *MemoryRepository) AddUser(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.users[email]; ok {
		return id
	}
	id := uuid.NewString()
	m.users[email] = id
	return id
}

func copyDoc(d *model.Document) *model.Document {
	c := *d
	if d.Content != nil {
		s := *d.Content
		c.Content = &s
	}
	return &c
}

func (m *MemoryRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CreatedAt = m.now()
	doc.UpdatedAt = doc.CreatedAt
	m.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (m *MemoryRepository) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(d), nil
}

func (m *MemoryRepository) UpdateDocument(ctx context.Context, id, title, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	d.Title = title
	d.Content = &content
	d.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) SetPublic(ctx context.Context, id string, public bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	d.IsPublic = public
	d.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	for sid, g := range m.shares {
		if g.DocumentID == id {
			delete(m.shares, sid)
		}
	}
	return nil
}

func (m *MemoryRepository) ListOwnedDocuments(ctx context.Context, ownerID string) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Document{}
	for _, d := range m.docs {
		if d.OwnerID == ownerID {
			out = append(out, *copyDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryRepository) ListSharedWith(ctx context.Context, userID string) ([]model.SharedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.SharedDocument{}
	for _, g := range m.shares {
		if g.SharedWith != userID {
			continue
		}
		if d, ok := m.docs[g.DocumentID]; ok {
			out = append(out, model.SharedDocument{Document: *copyDoc(d), Permission: g.Permission})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Document.UpdatedAt.After(out[j].Document.UpdatedAt) })
	return out, nil
}

func (m *MemoryRepository) findShare(docID, userID string) *model.ShareGrant {
	for _, g := range m.shares {
		if g.DocumentID == docID && g.SharedWith == userID {
			return g
		}
	}
	return nil
}

func (m *MemoryRepository) GetShare(ctx context.Context, docID, userID string) (*model.ShareGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g := m.findShare(docID, userID)
	if g == nil {
		return nil, ErrNotFound
	}
	c := *g
	return &c, nil
}

func (m *MemoryRepository) ListShares(ctx context.Context, docID string) ([]model.ShareGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.ShareGrant{}
	for _, g := range m.shares {
		if g.DocumentID != docID {
			continue
		}
		c := *g
		if p, ok := m.profiles[g.SharedWith]; ok {
			c.Username = p.Username
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) UpsertShare(ctx context.Context, docID, userID string, perm model.Permission) (*model.ShareGrant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[docID]; !ok {
		return nil, false, ErrNotFound
	}
	if g := m.findShare(docID, userID); g != nil {
		g.Permission = perm
		c := *g
		return &c, false, nil
	}
	g := &model.ShareGrant{
		ID:         uuid.NewString(),
		DocumentID: docID,
		SharedWith: userID,
		Permission: perm,
		CreatedAt:  m.now(),
	}
	m.shares[g.ID] = g
	c := *g
	return &c, true, nil
}

func (m *MemoryRepository) DeleteShare(ctx context.Context, docID, shareID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.shares[shareID]
	if !ok || g.DocumentID != docID {
		return "", ErrNotFound
	}
	delete(m.shares, shareID)
	return g.SharedWith, nil
}

func (m *MemoryRepository) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *MemoryRepository) FindProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if p.Username == username {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// CreateProfile fails with ErrConflict on a taken id or username.
func (m *MemoryRepository) CreateProfile(ctx context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return ErrConflict
	}
	for _, other := range m.profiles {
		if p.Username != "" && other.Username == p.Username {
			return ErrConflict
		}
	}
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	c := *p
	m.profiles[p.ID] = &c
	return nil
}

func (m *MemoryRepository) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.users[email]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}
