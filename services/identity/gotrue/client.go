// Package gotrue provisions identities through the Supabase GoTrue admin API.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
)

const (
	invitePath    = "/auth/v1/invite"
	adminUserPath = "/auth/v1/admin/users"

	maxErrorBody = 64 << 10
)

type (
	Client struct {
		baseURL    string
		key        string
		redirectTo string
		httpClient *http.Client
	}

	inviteRequest struct {
		Email string             `json:"email"`
		Data  provision.Metadata `json:"data,omitempty"`
	}

	createUserRequest struct {
		Email        string             `json:"email"`
		Password     string             `json:"password"`
		EmailConfirm bool               `json:"email_confirm"`
		UserMetadata provision.Metadata `json:"user_metadata,omitempty"`
	}
)

var _ provision.Provider = (*Client)(nil)

func NewClient(conf *core.Config, httpClient ...*http.Client) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(conf.Identity.URL, "/"),
		key:        conf.Identity.ServiceKey,
		redirectTo: conf.Identity.InviteRedirectURL,
		httpClient: &http.Client{Timeout: conf.Identity.Timeout},
	}
	if len(httpClient) > 0 && httpClient[0] != nil {
		c.httpClient = httpClient[0]
	}
	return c
}

func (c *Client) InviteUser(ctx context.Context, email string, meta provision.Metadata) error {
	var query url.Values
	if c.redirectTo != "" {
		query = url.Values{"redirect_to": {c.redirectTo}}
	}
	return c.post(ctx, invitePath, query, inviteRequest{Email: email, Data: meta})
}

func (c *Client) CreateUser(ctx context.Context, email, password string, meta provision.Metadata) error {
	return c.post(ctx, adminUserPath, nil, createUserRequest{
		Email:        email,
		Password:     password,
		EmailConfirm: true,
		UserMetadata: meta,
	})
}

func (c *Client) post(ctx context.Context, path string, query url.Values, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}

	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if err != nil {
		return errors.Wrapf(err, "POST %s: reading %d response", path, res.StatusCode)
	}
	return &provision.ProviderError{Status: res.StatusCode, Message: errorMessage(res.StatusCode, raw)}
}

// errorMessage extracts the human readable message of a GoTrue error body.
// GoTrue versions disagree on the field carrying it.
func errorMessage(status int, raw []byte) string {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"msg", "message", "error_description", "error"} {
			if s, ok := body[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", status)
}
