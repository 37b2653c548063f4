package handler

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"mdshare/internal/document/model"
	"mdshare/internal/document/service"
	"mdshare/internal/identity"
	"mdshare/middleware"
	"mdshare/pkg/apperror"
	"mdshare/pkg/logger"

	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templateFS embed.FS

// SessionProvider signs users in and out with the identity provider.
type SessionProvider interface {
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

type PageOptions struct {
	CookieSecure bool
	// BaseURL prefixes the public link on the share page; empty means relative.
	BaseURL string
	// AutosaveDelay is the quiet period after which a new document's first
	// input creates it. Zero means one second.
	AutosaveDelay time.Duration
}

// PageHandler renders the HTML pages. Pages that need a user sit behind
// middleware.RequireUser; /view/{id} accepts anonymous readers.
type PageHandler struct {
	Service  *service.DocumentService
	sessions SessionProvider
	opts     PageOptions
	pages    map[string]*template.Template
	notFound []byte
}

type pageData struct {
	Title    string
	Username string
	Flash    string
	Error    string

	Next  string
	Email string

	Dashboard *model.DashboardResponse

	Document      *model.Document
	OwnerUsername string
	CanWrite      bool
	CanManage     bool
	EditTitle     string
	EditContent   string

	Shares  []model.ShareGrant
	BaseURL string

	AutosaveMs int64
}

func NewPageHandler(svc *service.DocumentService, sessions SessionProvider, opts PageOptions) (*PageHandler, error) {
	h := &PageHandler{Service: svc, sessions: sessions, opts: opts, pages: map[string]*template.Template{}}
	for _, name := range []string{"login", "dashboard", "editor", "view", "share", "notfound", "error"} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		h.pages[name] = tmpl
	}

	// Rendered once, without any per-request data, so a missing document and
	// a hidden one produce the same bytes.
	var buf bytes.Buffer
	if err := h.pages["notfound"].ExecuteTemplate(&buf, "base", pageData{Title: "Not found"}); err != nil {
		return nil, err
	}
	h.notFound = buf.Bytes()
	return h, nil
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if data.Username == "" {
		data.Username = h.Service.Username(r.Context(), middleware.CurrentUser(r.Context()))
	}
	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "base", data); err != nil {
		logger.Sugar.Errorf("Failed to render %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (h *PageHandler) writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write(h.notFound)
}

// renderError shows a service error as a page. Hidden documents get the
// shared not-found page.
func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	if status == http.StatusNotFound && body == hiddenResponse {
		h.writeNotFound(w)
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Sugar.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	h.render(w, r, status, "error", pageData{Title: "Error", Error: body.Message})
}

func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// safeNext only allows local paths, so the login form cannot be used as an
// open redirect.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}

func (h *PageHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if middleware.CurrentUser(r.Context()) != "" {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login", pageData{Title: "Sign in", Next: r.URL.Query().Get("next")})
}

func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	next := r.FormValue("next")

	session, err := h.sessions.SignIn(r.Context(), email, password)
	if err != nil {
		status, msg := http.StatusUnauthorized, "Invalid login credentials"
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			status, msg = http.StatusBadGateway, "Sign in is unavailable, try again later"
		}
		h.render(w, r, status, "login", pageData{Title: "Sign in", Error: msg, Next: next, Email: email})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    session.AccessToken,
		Path:     "/",
		MaxAge:   session.ExpiresIn,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Sugar.Infof("User %s signed in", session.User.ID)
	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.AccessTokenCookie); err == nil {
		// The local cookie goes away even when the revoke call fails.
		_ = h.sessions.SignOut(r.Context(), c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.Service.Dashboard(r.Context(), middleware.CurrentUser(r.Context()))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "dashboard", pageData{Title: "Your documents", Dashboard: dash})
}

func (h *PageHandler) NewDocumentForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "editor", pageData{Title: "New document", AutosaveMs: h.autosaveMs()})
}

func (h *PageHandler) autosaveMs() int64 {
	if h.opts.AutosaveDelay <= 0 {
		return 1000
	}
	return h.opts.AutosaveDelay.Milliseconds()
}

func (h *PageHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	title, content := r.FormValue("title"), r.FormValue("content")

	doc, err := h.Service.CreateDocument(r.Context(), middleware.CurrentUser(r.Context()), title, content)
	if errors.Is(err, apperror.ErrValidation) {
		h.render(w, r, http.StatusBadRequest, "editor", pageData{
			Title: "New document", Error: err.Error(), EditTitle: title, EditContent: content,
			AutosaveMs: h.autosaveMs(),
		})
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/editor/"+doc.ID, http.StatusSeeOther)
}

func (h *PageHandler) editorData(view *service.View) pageData {
	return pageData{
		Title:         view.Document.Title,
		Document:      view.Document,
		OwnerUsername: view.OwnerUsername,
		CanWrite:      view.Level.CanWrite(),
		CanManage:     view.Level.CanManage(),
		EditTitle:     view.Document.Title,
		EditContent:   view.Document.Body(),
	}
}

// Editor opens a document for editing. Read-only access is sent to the
// view page instead.
func (h *PageHandler) Editor(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")

	view, err := h.Service.OpenEditor(r.Context(), middleware.CurrentUser(r.Context()), docID)
	if errors.Is(err, apperror.ErrReadOnly) {
		http.Redirect(w, r, "/view/"+docID, http.StatusSeeOther)
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "editor", h.editorData(view))
}

// SaveDocument is the manual save of the editor form.
func (h *PageHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUser(r.Context())
	docID := chi.URLParam(r, "id")
	edit := model.Edit{Title: r.FormValue("title"), Content: r.FormValue("content")}

	err := h.Service.SaveDocument(r.Context(), userID, docID, edit)
	if errors.Is(err, apperror.ErrReadOnly) {
		http.Redirect(w, r, "/view/"+docID, http.StatusSeeOther)
		return
	}
	if err != nil && !errors.Is(err, apperror.ErrValidation) {
		h.renderError(w, r, err)
		return
	}

	view, openErr := h.Service.OpenEditor(r.Context(), userID, docID)
	if openErr != nil {
		h.renderError(w, r, openErr)
		return
	}
	data := h.editorData(view)
	if err != nil {
		data.Error = err.Error()
		data.EditTitle, data.EditContent = edit.Title, edit.Content
		h.render(w, r, http.StatusBadRequest, "editor", data)
		return
	}
	data.Flash = "Document saved"
	h.render(w, r, http.StatusOK, "editor", data)
}

// View is the read-only page, open to anonymous readers of public documents.
func (h *PageHandler) View(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")

	view, err := h.Service.OpenDocument(r.Context(), middleware.CurrentUser(r.Context()), docID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "view", pageData{
		Title:         view.Document.Title,
		Document:      view.Document,
		OwnerUsername: view.OwnerUsername,
		CanWrite:      view.Level.CanWrite(),
	})
}

// renderShare redraws the share page with the current grants and a banner.
func (h *PageHandler) renderShare(w http.ResponseWriter, r *http.Request, flash string, actionErr error) {
	docID := chi.URLParam(r, "id")
	doc, grants, err := h.Service.ListShares(r.Context(), middleware.CurrentUser(r.Context()), docID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	data := pageData{Title: "Share " + doc.Title, Document: doc, Shares: grants, BaseURL: h.opts.BaseURL, Flash: flash}
	status := http.StatusOK
	if actionErr != nil {
		var body ErrorResponse
		status, body = errorStatus(actionErr)
		if status >= http.StatusInternalServerError {
			logger.Sugar.Errorf("%s %s: %v", r.Method, r.URL.Path, actionErr)
		}
		data.Error = body.Message
	}
	h.render(w, r, status, "share", data)
}

func (h *PageHandler) SharePage(w http.ResponseWriter, r *http.Request) {
	h.renderShare(w, r, "", nil)
}

func (h *PageHandler) Share(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.ShareDocument(r.Context(), middleware.CurrentUser(r.Context()),
		chi.URLParam(r, "id"), r.FormValue("username"), r.FormValue("permission"))
	if err != nil {
		if apperror.IsHidden(err) || errors.Is(err, apperror.ErrNotOwner) {
			h.renderError(w, r, err)
			return
		}
		h.renderShare(w, r, "", err)
		return
	}
	h.renderShare(w, r, res.Message, nil)
}

func (h *PageHandler) TogglePublic(w http.ResponseWriter, r *http.Request) {
	msg, err := h.Service.TogglePublic(r.Context(), middleware.CurrentUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderShare(w, r, msg, nil)
}

func (h *PageHandler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	err := h.Service.RevokeShare(r.Context(), middleware.CurrentUser(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "shareID"))
	if errors.Is(err, apperror.ErrShareNotFound) {
		h.renderShare(w, r, "", err)
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderShare(w, r, "Sharing removed successfully", nil)
}

func (h *PageHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := h.Service.DeleteDocument(r.Context(), middleware.CurrentUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeNotFound(w)
}
