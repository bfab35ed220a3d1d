package client

import (
	"context"
	"net/http"
)

type userEnvelope struct {
	User *User `json:"user"`
}

type messageEnvelope struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a token and stores it
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", req)
}

// Register creates an account and signs it in
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register", req)
}

// DemoLogin signs in as the seeded demo account; kind is "user" or "admin"
func (c *Client) DemoLogin(ctx context.Context, kind string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/demo-login", map[string]string{"type": kind})
}

func (c *Client) authenticate(ctx context.Context, path string, body interface{}) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.Do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}
	if err := c.store.Save(&Credentials{Token: resp.Token, User: resp.User}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the session on the server and forgets the token. The
// local token is dropped even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	if clearErr := c.store.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

// Profile returns the signed-in user
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var resp userEnvelope
	if err := c.Do(ctx, http.MethodGet, "/auth/profile", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// UpdateProfile changes the signed-in user's contact details
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	var resp userEnvelope
	if err := c.Do(ctx, http.MethodPut, "/auth/profile", nil, update, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// ChangePassword replaces the signed-in user's password
func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) error {
	return c.Do(ctx, http.MethodPost, "/auth/change-password", nil, change, nil)
}

// SetupTOTP starts two-factor enrolment
func (c *Client) SetupTOTP(ctx context.Context) (*TOTPSetup, error) {
	var setup TOTPSetup
	if err := c.Do(ctx, http.MethodPost, "/auth/2fa/setup", nil, nil, &setup); err != nil {
		return nil, err
	}
	return &setup, nil
}

// EnableTOTP confirms enrolment with a current code
func (c *Client) EnableTOTP(ctx context.Context, code string) error {
	return c.Do(ctx, http.MethodPost, "/auth/2fa/enable", nil, map[string]string{"code": code}, nil)
}

// DisableTOTP turns two-factor off
func (c *Client) DisableTOTP(ctx context.Context, code string) error {
	return c.Do(ctx, http.MethodPost, "/auth/2fa/disable", nil, map[string]string{"code": code}, nil)
}
