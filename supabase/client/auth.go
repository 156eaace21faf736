package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Auth returns an auth client for GoTrue operations.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles authentication operations.
type AuthClient struct {
	client *Client
}

// Session is an issued token pair with its user.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// User represents a Supabase auth user.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// SignUp creates a new user. Metadata becomes the user's user_metadata.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if metadata != nil {
		payload["data"] = metadata
	}
	var session Session
	if err := a.post(ctx, "/auth/v1/signup", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignInWithPassword signs in with email and password.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	var session Session
	if err := a.post(ctx, "/auth/v1/token?grant_type=password", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RefreshSession exchanges a refresh token for a new session.
func (a *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	var session Session
	if err := a.post(ctx, "/auth/v1/token?grant_type=refresh_token", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// OAuthURL builds the authorize URL for an OAuth provider sign-in.
func (a *AuthClient) OAuthURL(provider, redirectTo string) string {
	params := url.Values{}
	params.Set("provider", provider)
	if redirectTo != "" {
		params.Set("redirect_to", redirectTo)
	}
	return fmt.Sprintf("%s/auth/v1/authorize?%s", a.client.baseURL, params.Encode())
}

// GetUser returns the user the access token belongs to. A rejected token
// surfaces as an *APIError whose IsTransientAuth classifies the failure.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", a.client.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := a.client.do(req)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}

// SignOut revokes the access token's session upstream.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", a.client.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	_, err = a.client.do(req)
	return err
}

func (a *AuthClient) post(ctx context.Context, path string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", a.client.apiKey)
	req.Header.Set("Content-Type", "application/json")

	respBody, err := a.client.do(req)
	if err != nil {
		return err
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, bytes.NewReader(respBody))
		return nil
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}
