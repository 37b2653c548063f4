package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mdshare/internal/document/model"
	"mdshare/internal/document/service"
	"mdshare/pkg/apperror"
	"mdshare/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 5 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin is left nil: only the editor page served from this host
	// may open a session with the user's cookie.
}

// EditorService is the part of the document service an editor session uses.
type EditorService interface {
	OpenEditor(ctx context.Context, userID, docID string) (*service.View, error)
	ScheduleSave(ctx context.Context, userID, docID string, edit model.Edit) error
	SaveDocument(ctx context.Context, userID, docID string, edit model.Edit) error
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWs upgrades an editor session. Access is checked before the upgrade,
// so a reader or a stranger gets a plain HTTP error and no socket.
func ServeWs(hub *Hub, editor EditorService, w http.ResponseWriter, r *http.Request, userID string) {
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId", http.StatusBadRequest)
		return
	}

	view, err := editor.OpenEditor(r.Context(), userID, docID)
	switch {
	case apperror.IsHidden(err):
		logger.Sugar.Warnf("Connection rejected: Document %s not found", docID)
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	case errors.Is(err, apperror.ErrReadOnly):
		http.Error(w, "You only have read access to this document", http.StatusForbidden)
		return
	case err != nil:
		logger.Sugar.Errorf("Failed to open editor for %s: %v", docID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:    hub,
		Conn:   conn,
		DocID:  docID,
		UserID: userID,
		Send:   make(chan []byte, 16),
	}
	client.Hub.Register <- client

	snapshot, _ := json.Marshal(model.Edit{Title: view.Document.Title, Content: view.Document.Body()})
	client.send(DocumentType, snapshot)

	go client.writePump()
	go client.readPump(editor)
}

// send queues a message without blocking; a full buffer drops it.
func (c *Client) send(msgType string, payload json.RawMessage) {
	msg, err := json.Marshal(WSMessage{Type: msgType, DocID: c.DocID, Payload: payload})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s message: %v", msgType, err)
		return
	}
	select {
	case c.Send <- msg:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full, dropping %s", c.UserID, msgType)
	}
}

func (c *Client) sendError(message string) {
	payload, _ := json.Marshal(errorPayload{Message: message})
	c.send(ErrorType, payload)
}

// errorMessage is the text shown in the editor status line.
func errorMessage(err error) string {
	var appErr *apperror.AppError
	switch {
	case apperror.IsHidden(err):
		return "Document not found"
	case errors.Is(err, apperror.ErrReadOnly):
		return "You only have read access to this document"
	case errors.As(err, &appErr) && errors.Is(err, apperror.ErrValidation):
		return appErr.Message
	default:
		return "Failed to save document"
	}
}

func (c *Client) readPump(editor EditorService) {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}
		if msg.Type != EditType && msg.Type != SaveType {
			logger.Sugar.Warnf("Unknown message type %q from %s", msg.Type, c.UserID)
			continue
		}
		var edit model.Edit
		if err := json.Unmarshal(msg.Payload, &edit); err != nil {
			c.sendError("Invalid message")
			continue
		}

		// Access is checked again on every message; a grant can be revoked
		// while the session is open.
		ctx := context.Background()
		switch msg.Type {
		case EditType:
			err = editor.ScheduleSave(ctx, c.UserID, c.DocID, edit)
		case SaveType:
			err = editor.SaveDocument(ctx, c.UserID, c.DocID, edit)
			if err == nil {
				c.send(SavedType, nil)
			}
		}

		if err != nil {
			c.sendError(errorMessage(err))
			if apperror.IsHidden(err) || errors.Is(err, apperror.ErrReadOnly) {
				logger.Sugar.Warnf("Permission Denied: User %s lost write access to doc %s", c.UserID, c.DocID)
				break
			}
			if !errors.Is(err, apperror.ErrValidation) {
				logger.Sugar.Errorf("Failed to save doc %s: %v", c.DocID, err)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
