package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/fleet-tracker/internal/models"
)

type tokenResponse struct {
	Token       string          `json:"token"`
	AccessToken string          `json:"access_token"`
	Data        json.RawMessage `json:"data"`
}

func (t tokenResponse) value() string {
	if t.Token != "" {
		return t.Token
	}
	if t.AccessToken != "" {
		return t.AccessToken
	}
	var nested struct {
		Token string `json:"token"`
	}
	if len(t.Data) > 0 && json.Unmarshal(t.Data, &nested) == nil {
		return nested.Token
	}
	return ""
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.authenticate(ctx, "register", "/register", body)
}

// Login exchanges credentials for a token and stores it. Nothing is stored
// on failure.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "login", "/login", body)
}

func (c *Client) authenticate(ctx context.Context, op, path string, body any) error {
	var resp tokenResponse
	if err := c.do(ctx, call{op: op, method: http.MethodPost, path: path, body: body, credentials: true}, &resp); err != nil {
		return err
	}
	tok := resp.value()
	if tok == "" {
		return &DataError{Op: op, Err: errors.New("response carries no token")}
	}
	return c.tokens.SetToken(ctx, tok)
}

// LoadUser resolves the stored token into the signed-in user.
func (c *Client) LoadUser(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.do(ctx, call{op: "load_user", method: http.MethodGet, path: "/user", bearer: true}, &u)
	return u, err
}

// Logout revokes the token remotely when possible and always forgets it
// locally. Only a local failure is returned.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, call{op: "logout", method: http.MethodPost, path: "/logout", bearer: true}, nil)
	switch {
	case err == nil, errors.Is(err, ErrNoSession):
	default:
		c.log.Warn().Err(err).Msg("remote logout failed, clearing local session anyway")
	}
	return c.tokens.Clear(context.WithoutCancel(ctx))
}
