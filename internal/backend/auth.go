package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type ValidateEmailResult struct {
	Valid   bool
	Message string
}

type AuthResult struct {
	Token   string
	Message string
}

type MessageResult struct {
	Message string `json:"message"`
}

// ValidateEmail runs step one of the login flow.
func (c *Client) ValidateEmail(ctx context.Context, email string) (*ValidateEmailResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, invalid("email is required")
	}
	var out struct {
		Valid          bool   `json:"valid"`
		EmailValidated bool   `json:"emailValidated"`
		Message        string `json:"message"`
	}
	err := c.do(ctx, call{
		endpoint: "validate_email",
		method:   http.MethodPost,
		path:     "/api/auth/validate-email",
		body:     map[string]string{"email": email},
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &ValidateEmailResult{Valid: out.Valid || out.EmailValidated, Message: out.Message}, nil
}

// Authenticate exchanges credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, invalid("email and password are required")
	}
	var out struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	err := c.do(ctx, call{
		endpoint: "authenticate",
		method:   http.MethodPost,
		path:     "/api/auth/authenticate",
		body:     map[string]string{"email": strings.TrimSpace(email), "password": password},
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("authenticate: response carried no token")
	}
	return &AuthResult{Token: out.Token, Message: out.Message}, nil
}

// Logout invalidates token on the backend.
func (c *Client) Logout(ctx context.Context, token string) (*MessageResult, error) {
	if token == "" {
		return nil, invalid("token is required")
	}
	var out MessageResult
	err := c.do(ctx, call{
		endpoint: "logout",
		method:   http.MethodPost,
		path:     "/api/auth/logout",
		token:    token,
		body:     map[string]string{"token": token},
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
