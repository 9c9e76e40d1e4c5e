package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPError is a non-2xx API response.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Session struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	AccountID    string    `json:"account_id"`
	DisplayName  string    `json:"display_name"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Page struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	ParentID  *string         `json:"parent_id"`
	Position  int             `json:"position"`
	Content   json.RawMessage `json:"content,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	Position  int       `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TreeNode struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Name     string     `json:"name"`
	ParentID *string    `json:"parent_id"`
	Position int        `json:"position"`
	Children []TreeNode `json:"children,omitempty"`
}

// Move is one entry of a positions update. A nil ParentID moves the item to
// the root.
type Move struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Position int     `json:"position"`
	ParentID *string `json:"parent_id"`
}

type Item struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	ParentID *string `json:"parent_id"`
	Position int     `json:"position"`
	Title    string  `json:"title"`
}

type Positions struct {
	Pages   []Item `json:"pages"`
	Folders []Item `json:"folders"`
}

// Client calls the notebook API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Token() string {
	return c.token
}

func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/api/auth/signin", map[string]string{"email": email, "password": password}, &session)
	if err != nil {
		return Session{}, err
	}
	c.token = session.Token
	return session, nil
}

func (c *Client) ListPages(ctx context.Context) ([]Page, error) {
	var out struct {
		Items []Page `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/pages", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var out struct {
		Items []Folder `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/folders", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) Tree(ctx context.Context) ([]TreeNode, error) {
	var out struct {
		Items []TreeNode `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tree", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) Reorder(ctx context.Context, moves []Move) (Positions, error) {
	var out Positions
	if err := c.do(ctx, http.MethodPut, "/api/positions/update", moves, &out); err != nil {
		return Positions{}, err
	}
	return out, nil
}

func (c *Client) CreatePage(ctx context.Context, title string, parentID *string) (Page, error) {
	var out Page
	body := map[string]any{"title": title, "parent_id": parentID}
	if err := c.do(ctx, http.MethodPost, "/api/pages", body, &out); err != nil {
		return Page{}, err
	}
	return out, nil
}

func (c *Client) CreateFolder(ctx context.Context, name string, parentID *string) (Folder, error) {
	var out Folder
	body := map[string]any{"name": name, "parent_id": parentID}
	if err := c.do(ctx, http.MethodPost, "/api/folders", body, &out); err != nil {
		return Folder{}, err
	}
	return out, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(res.Body).Decode(&env)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: res.StatusCode}
		if decodeErr == nil && env.Error != nil {
			httpErr.Code = env.Error.Code
			httpErr.Message = env.Error.Message
		}
		return httpErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}
