package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mdshare/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserIDKey contextKey = "userID"

// AccessTokenCookie holds the Supabase access token of a browser session.
const AccessTokenCookie = "sb-access-token"

// Authenticator verifies Supabase access tokens (HS256, signed with the
// project JWT secret) and puts the user id into the request context.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(jwtSecret string) *Authenticator {
	return &Authenticator{secret: []byte(jwtSecret)}
}

// TokenFromRequest looks in the Authorization header, then the session
// cookie, then the token query parameter. Browsers cannot set headers on a
// WebSocket handshake, hence the query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// ParseToken validates tokenString and returns its subject.
func (a *Authenticator) ParseToken(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("server is not configured to validate JWTs")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure the signing method is HMAC (Supabase default)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("could not parse token claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user id (sub) claim is missing or invalid")
	}
	return userID, nil
}

// OptionalAuth resolves the user when a valid token is present and lets
// anonymous requests through untouched.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenString := TokenFromRequest(r); tokenString != "" {
			userID, err := a.ParseToken(tokenString)
			if err != nil {
				logger.Sugar.Debugf("Ignoring token: %v", err)
			} else {
				r = r.WithContext(WithUser(r.Context(), userID))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware rejects requests without a valid token with 401. Used for
// the JSON API and the editor socket.
func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) != "" {
			next.ServeHTTP(w, r)
			return
		}
		tokenString := TokenFromRequest(r)
		if tokenString == "" {
			http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
			return
		}
		userID, err := a.ParseToken(tokenString)
		if err != nil {
			logger.Sugar.Infof("Invalid token: %v", err)
			http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

// RequireUser sends anonymous page requests to the login form. Must run
// after OptionalAuth.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == "" {
			http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL is the login page that returns to next after signing in.
func LoginURL(next string) string {
	if next == "" || next == "/" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// CurrentUser returns the authenticated user id, "" for anonymous requests.
func CurrentUser(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}
