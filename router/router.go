package router

import (
	"context"
	"net/http"

	"mdshare/config"
	docHandler "mdshare/internal/document"
	"mdshare/internal/document/service"
	"mdshare/internal/seed"
	"mdshare/middleware"
	"mdshare/socket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Pinger is checked by /health; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Config   *config.Config
	Service  *service.DocumentService
	Hub      *socket.Hub
	Auth     *middleware.Authenticator
	Sessions docHandler.SessionProvider
	Seed     *seed.Initializer
	DB       Pinger        // optional
	Redis    *redis.Client // optional, enables the shared rate limiter
}

func Setup(d Deps) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	// OptionalAuth runs first so the request log and the limiter can see the user.
	r.Use(d.Auth.OptionalAuth)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORSMiddleware(d.Config.Server.AllowOrigin))

	r.Get("/health", health(d.DB))
	r.Handle("/metrics", promhttp.Handler())

	pages, err := docHandler.NewPageHandler(d.Service, d.Sessions, docHandler.PageOptions{
		CookieSecure:  d.Config.Server.CookieSecure,
		BaseURL:       d.Config.Server.BaseURL,
		AutosaveDelay: d.Config.Autosave.Debounce,
	})
	if err != nil {
		return nil, err
	}
	api := docHandler.NewDocumentHandler(d.Service)

	r.Group(func(r chi.Router) {
		if rl := d.Config.RateLimit; rl.Enabled {
			if d.Redis != nil {
				r.Use(middleware.RedisRateLimit(d.Redis, rl.RPS, rl.Burst, rl.Window))
			} else {
				r.Use(middleware.RateLimit(rl.RPS, rl.Burst))
			}
		}

		// Pages
		r.Get("/", pages.Home)
		r.Get("/login", pages.LoginForm)
		r.Post("/login", pages.Login)
		r.Post("/logout", pages.Logout)
		r.Get("/view/{id}", pages.View)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Get("/dashboard", pages.Dashboard)
			r.Get("/editor/new", pages.NewDocumentForm)
			r.Post("/editor/new", pages.CreateDocument)
			r.Get("/editor/{id}", pages.Editor)
			r.Post("/editor/{id}", pages.SaveDocument)
			r.Get("/share/{id}", pages.SharePage)
			r.Post("/share/{id}", pages.Share)
			r.Post("/share/{id}/public", pages.TogglePublic)
			r.Post("/share/{id}/revoke/{shareID}", pages.RevokeShare)
			r.Post("/documents/{id}/delete", pages.DeleteDocument)
		})

		// WebSocket
		r.With(d.Auth.AuthMiddleware).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			socket.ServeWs(d.Hub, d.Service, w, r, middleware.CurrentUser(r.Context()))
		})

		// REST API
		r.Get("/api/init", docHandler.InitDemo(d.Seed))
		r.Route("/api/documents", func(r chi.Router) {
			r.Use(d.Auth.AuthMiddleware)
			r.Get("/", api.GetDocuments)
			r.Post("/", api.CreateDocument)
			r.Get("/{id}", api.GetDocument)
			r.Put("/{id}", api.SaveDocument)
			r.Delete("/{id}", api.DeleteDocument)
			r.Put("/{id}/public", api.SetPublic)
			r.Get("/{id}/shares", api.GetShares)
			r.Post("/{id}/shares", api.ShareDocument)
			r.Delete("/{id}/shares/{shareID}", api.RevokeShare)
		})
	})

	r.NotFound(pages.NotFound)
	return r, nil
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("healthy"))
	}
}
