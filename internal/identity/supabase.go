// Package identity signs users in and out of Supabase auth (GoTrue) and
// creates accounts through its admin API.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mdshare/config"
	"mdshare/pkg/logger"

	"github.com/google/uuid"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// ErrInvalidCredentials is returned by SignIn for a rejected email/password.
var ErrInvalidCredentials = errors.New("invalid login credentials")

var errNoServiceKey = errors.New("SUPABASE_SERVICE_ROLE_KEY is not set")

type Client struct {
	auth  gotrue.Client
	admin gotrue.Client // nil without a service role key
}

// NewClient points both GoTrue clients at <SUPABASE_URL>/auth/v1. The admin
// client sends the service role key as api key and bearer token.
func NewClient(cfg config.SupabaseConfig) *Client {
	authURL := strings.TrimSuffix(cfg.URL, "/") + "/auth/v1"
	c := &Client{auth: gotrue.New("", cfg.AnonKey).WithCustomGoTrueURL(authURL)}
	if cfg.ServiceRoleKey != "" {
		c.admin = gotrue.New("", cfg.ServiceRoleKey).WithCustomGoTrueURL(authURL).WithToken(cfg.ServiceRoleKey)
	}
	return c
}

// Session is the token pair GoTrue returns on sign-in.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	User         struct {
		ID    string
		Email string
	}
}

// statusCode extracts the HTTP status gotrue-go puts in its error text.
func statusCode(err error) int {
	var code int
	if _, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &code); scanErr != nil {
		return 0
	}
	return code
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.auth.SignInWithEmailPassword(email, password)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTokenRequest) {
			return nil, ErrInvalidCredentials
		}
		if code := statusCode(err); code == http.StatusBadRequest || code == http.StatusUnauthorized {
			return nil, ErrInvalidCredentials
		}
		logger.Sugar.Errorf("Sign in request failed: %v", err)
		return nil, err
	}

	s := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
	}
	s.User.ID = resp.User.ID.String()
	s.User.Email = resp.User.Email
	return s, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.auth.WithToken(accessToken).Logout(); err != nil {
		logger.Sugar.Warnf("Sign out request failed: %v", err)
		return err
	}
	return nil
}

// CreateUser registers a confirmed account through the admin API and returns
// its id. Needs the service role key.
func (c *Client) CreateUser(ctx context.Context, email, password string) (string, error) {
	if c.admin == nil {
		return "", errNoServiceKey
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := c.admin.AdminCreateUser(types.AdminCreateUserRequest{
		Email:        email,
		Password:     &password,
		EmailConfirm: true,
	})
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	if resp.ID == uuid.Nil {
		return "", errors.New("auth server returned no user id")
	}
	return resp.ID.String(), nil
}
