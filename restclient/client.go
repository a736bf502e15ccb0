// Package restclient implements admin.API over the administration HTTP API.
package restclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/unkn0wn-root/editcache"
	"github.com/unkn0wn-root/editcache/admin"
	"github.com/unkn0wn-root/editcache/config"
)

// maxErrorBody bounds how much of a failed response is read into APIError.
const maxErrorBody = 4 << 10

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration // 0 => no client timeout
	// HTTPClient overrides the default client; Timeout is then ignored.
	HTTPClient *http.Client
	Logger     editcache.Logger
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   editcache.Logger
}

var _ admin.API = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("restclient: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("restclient: parse base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = editcache.NopLogger{}
	}
	return &Client{base: base, token: cfg.Token, http: hc, log: log.With(editcache.Fields{"component": "restclient"})}, nil
}

// FromConfig builds a client from the EDITCACHE_API_* settings.
func FromConfig(cfg config.Config, log editcache.Logger) (*Client, error) {
	return New(Config{BaseURL: cfg.APIBaseURL, Token: cfg.APIToken, Timeout: cfg.APITimeout, Logger: log})
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = c.base.Path + "/" + strings.Join(parts, "/")
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(escaped, "/")
	return u.String()
}

// do sends the request and returns the response of a 2xx call. Any other
// status is turned into an *admin.APIError with the body closed.
func (c *Client) do(ctx context.Context, op, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	c.log.Debug("api call", editcache.Fields{"op": op, "method": method, "status": resp.StatusCode, "took": time.Since(start)})

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, apiError(op, resp)
}

func apiError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &admin.APIError{Op: op, Status: resp.StatusCode, Code: admin.CodeForStatus(resp.StatusCode)}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		e.Message = body.Message
	} else {
		e.Message = strings.TrimSpace(string(raw))
	}
	return e
}

func (c *Client) sendJSON(ctx context.Context, op, method, target string, in any) (*http.Response, error) {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		body, contentType = bytes.NewReader(b), "application/json"
	}
	return c.do(ctx, op, method, target, body, contentType)
}

func decodeInto(op string, resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// drain discards the body so the connection can be reused.
func drain(resp *http.Response) error {
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) FetchUser(ctx context.Context, userID string) (admin.User, error) {
	resp, err := c.do(ctx, "fetch user", http.MethodGet, c.endpoint("users", userID), nil, "")
	if err != nil {
		return admin.User{}, err
	}
	var w userWire
	if err := decodeInto("fetch user", resp, &w); err != nil {
		return admin.User{}, err
	}
	return w.user(), nil
}

func (c *Client) FetchRoles(ctx context.Context) ([]admin.Role, error) {
	resp, err := c.do(ctx, "fetch roles", http.MethodGet, c.endpoint("roles"), nil, "")
	if err != nil {
		return nil, err
	}
	var roles []admin.Role
	if err := decodeInto("fetch roles", resp, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (c *Client) FetchPermissions(ctx context.Context) ([]admin.Permission, error) {
	resp, err := c.do(ctx, "fetch permissions", http.MethodGet, c.endpoint("permissions"), nil, "")
	if err != nil {
		return nil, err
	}
	var perms []admin.Permission
	if err := decodeInto("fetch permissions", resp, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, p admin.ProfileChange) (admin.Response, error) {
	resp, err := c.sendJSON(ctx, "update profile", http.MethodPatch, c.endpoint("users", userID), p)
	if err != nil {
		return nil, err
	}
	return readResponse("update profile", resp)
}

func (c *Client) SetStatus(ctx context.Context, userID string, s admin.Status) (admin.Response, error) {
	in := struct {
		Status admin.Status `json:"status"`
	}{s}
	resp, err := c.sendJSON(ctx, "set status", http.MethodPut, c.endpoint("users", userID, "status"), in)
	if err != nil {
		return nil, err
	}
	return readResponse("set status", resp)
}

func (c *Client) AssignRoles(ctx context.Context, userID string, roleIDs []string) (admin.Response, error) {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	in := struct {
		RoleIDs []string `json:"roleIds"`
	}{roleIDs}
	resp, err := c.sendJSON(ctx, "assign roles", http.MethodPut, c.endpoint("users", userID, "roles"), in)
	if err != nil {
		return nil, err
	}
	return readResponse("assign roles", resp)
}

func (c *Client) UpsertOverride(ctx context.Context, userID string, o admin.Override) error {
	in := struct {
		Effect admin.Effect `json:"effect"`
	}{o.Effect}
	resp, err := c.sendJSON(ctx, "upsert override", http.MethodPut, c.endpoint("users", userID, "overrides", o.PermissionID), in)
	if err != nil {
		return err
	}
	return drain(resp)
}

func (c *Client) DeleteOverride(ctx context.Context, userID, permissionID string) error {
	resp, err := c.do(ctx, "delete override", http.MethodDelete, c.endpoint("users", userID, "overrides", permissionID), nil, "")
	if err != nil {
		return err
	}
	return drain(resp)
}

func (c *Client) DeleteAttachment(ctx context.Context, userID, attachmentID string) error {
	resp, err := c.do(ctx, "delete attachment", http.MethodDelete, c.endpoint("users", userID, "attachments", attachmentID), nil, "")
	if err != nil {
		return err
	}
	return drain(resp)
}

func (c *Client) SetPin(ctx context.Context, userID string, ch admin.PinChange) (admin.PinState, error) {
	resp, err := c.sendJSON(ctx, "set pin", http.MethodPut, c.endpoint("users", userID, "pin"), ch)
	if err != nil {
		return admin.PinState{}, err
	}
	var st admin.PinState
	if err := decodeInto("set pin", resp, &st); err != nil {
		return admin.PinState{}, err
	}
	return st, nil
}
