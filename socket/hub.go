package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mdshare/pkg/logger"
	"mdshare/pkg/metrics"

	"github.com/gorilla/websocket"
)

const (
	EditType     = "EDIT"     // Editor snapshot, saved after the quiet period
	SaveType     = "SAVE"     // Manual save, written immediately
	DocumentType = "DOCUMENT" // Current title/content, sent on join
	SavedType    = "SAVED"    // Reply to SAVE
	ErrorType    = "ERROR"    // Reply to a rejected EDIT or SAVE

	flushTimeout = 10 * time.Second
)

type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"document_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Flusher writes the pending edits of a document.
type Flusher interface {
	FlushPending(ctx context.Context, docID string) error
}

// Hub tracks the open editor sessions of each document. Sessions never see
// each other's edits; the hub only knows who is connected so it can flush
// a document when its last editor leaves and close sessions that lost
// access.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	flusher    Flusher
	mu         sync.Mutex
}

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	DocID  string
	UserID string
	Send   chan []byte
}

func NewHub(flusher Flusher) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		flusher:    flusher,
	}
}

// Run processes registrations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
			}
			h.Rooms[client.DocID][client] = true
			h.mu.Unlock()
			metrics.EditorSessions.Inc()

		case client := <-h.Unregister:
			h.mu.Lock()
			empty := false
			if _, ok := h.Rooms[client.DocID][client]; ok {
				delete(h.Rooms[client.DocID], client)
				close(client.Send)
				metrics.EditorSessions.Dec()
				if len(h.Rooms[client.DocID]) == 0 {
					delete(h.Rooms, client.DocID)
					empty = true
				}
			}
			h.mu.Unlock()

			// The last editor left: write what it typed during the quiet period.
			if empty {
				h.flush(client.DocID)
			}
		}
	}
}

func (h *Hub) flush(docID string) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := h.flusher.FlushPending(ctx, docID); err != nil {
		logger.Sugar.Errorf("Failed to save doc %s on close: %v", docID, err)
		return
	}
	logger.Sugar.Infof("Closed editor room: %s", docID)
}

// RemoveDocument disconnects every session of a deleted document. Closing the
// connection makes readPump exit and unregister the client.
func (h *Hub) RemoveDocument(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.Rooms[docID] {
		client.Conn.Close()
	}
}

// DisconnectUser closes the sessions userID has open on docID, after their
// write access was revoked.
func (h *Hub) DisconnectUser(docID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.Rooms[docID] {
		if client.UserID == userID {
			logger.Sugar.Infof("Closing editor session of %s on %s", userID, docID)
			client.Conn.Close()
		}
	}
}

// Sessions returns the number of open sessions on docID.
func (h *Hub) Sessions(docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[docID])
}
