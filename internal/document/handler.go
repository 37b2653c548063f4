package handler

import (
	"net/http"

	"mdshare/internal/document/model"
	"mdshare/internal/document/service"
	"mdshare/internal/seed"
	"mdshare/middleware"

	"github.com/go-chi/chi/v5"
)

// DocumentHandler serves the JSON API under /api/documents. Every route sits
// behind Authenticator.AuthMiddleware.
type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())

	dash, err := h.Service.Dashboard(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())

	var req model.CreateDocRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	doc, err := h.Service.CreateDocument(r.Context(), userID, req.Title, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())
	docID := chi.URLParam(r, "id")

	view, err := h.Service.OpenDocument(r.Context(), userID, docID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.DocumentResponse{
		Document:      *view.Document,
		Access:        view.Level.String(),
		OwnerUsername: view.OwnerUsername,
	})
}

func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())
	docID := chi.URLParam(r, "id")

	var req model.SaveDocRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	edit := model.Edit{Title: req.Title, Content: req.Content}
	if err := h.Service.SaveDocument(r.Context(), userID, docID, edit); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: "Document saved successfully"})
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())
	docID := chi.URLParam(r, "id")

	if err := h.Service.DeleteDocument(r.Context(), userID, docID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: "Document deleted successfully"})
}

func (h *DocumentHandler) SetPublic(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())
	docID := chi.URLParam(r, "id")

	var req model.PublicRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.Service.SetPublic(r.Context(), userID, docID, req.IsPublic)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: msg})
}

func (h *DocumentHandler) GetShares(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())
	docID := chi.URLParam(r, "id")

	_, grants, err := h.Service.ListShares(r.Context(), userID, docID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (h *DocumentHandler) ShareDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())
	docID := chi.URLParam(r, "id")

	var req model.ShareRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.Service.ShareDocument(r.Context(), userID, docID, req.Username, req.Permission)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, model.ShareResponse{Grant: *res.Grant, Created: res.Created, Message: res.Message})
}

func (h *DocumentHandler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())
	docID := chi.URLParam(r, "id")
	shareID := chi.URLParam(r, "shareID")

	if err := h.Service.RevokeShare(r.Context(), userID, docID, shareID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: "Sharing removed successfully"})
}

// InitDemo runs the demo seed. The result is always 200; the cause of a
// failure is logged, never returned.
func InitDemo(initializer *seed.Initializer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Run logs its own failures; the result carries the public message.
		res, _ := initializer.Run(r.Context())
		writeJSON(w, http.StatusOK, res)
	}
}
