package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client talks HTTP to the image-chat backend. All methods are safe for
// concurrent use; the zero value is not usable, construct with NewClient.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	log zerolog.Logger
}

func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

// Status reports server and database health.
func (c *Client) Status(ctx context.Context) (*ServerStatus, error) {
	var out ServerStatus
	if err := c.doJSON(ctx, http.MethodGet, "/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchChatEvents returns the flat chat log matching the filter, oldest first.
func (c *Client) FetchChatEvents(ctx context.Context, f Filter) ([]ChatEvent, error) {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("user_id", f.UserID)
	}
	if f.ImageID != "" {
		q.Set("image_id", f.ImageID)
	}
	var out struct {
		ChatHistory []ChatEvent `json:"chat_history"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/chat-history", q, nil, &out); err != nil {
		return nil, err
	}
	return out.ChatHistory, nil
}

// FetchImage returns metadata for one image. The user id is passed along so
// the server can record the view.
func (c *Client) FetchImage(ctx context.Context, imageID, userID string) (*ImageRef, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	var out ImageRef
	if err := c.doJSON(ctx, http.MethodGet, "/images/"+url.PathEscape(imageID), q, nil, &out); err != nil {
		return nil, err
	}
	if out.ImageID == "" {
		out.ImageID = out.RawID
	}
	if out.ImageID == "" {
		out.ImageID = imageID
	}
	return &out, nil
}

// SendMessage submits one user message about an image and returns the
// assistant's reply.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*ChatReply, error) {
	var out ChatReply
	if err := c.doJSON(ctx, http.MethodPost, "/chat", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteChatHistory removes every chat event for the given image and user.
func (c *Client) DeleteChatHistory(ctx context.Context, imageID, userID string) (*DeleteResult, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	var out DeleteResult
	if err := c.doJSON(ctx, http.MethodDelete, "/chat-history/"+url.PathEscape(imageID), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadImage posts the file at path as a multipart upload. The server
// analyzes the image before responding, so this call can take a while.
func (c *Client) UploadImage(ctx context.Context, path, title, description, userID string) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if title == "" {
		title = filepath.Base(path)
	}
	_ = w.WriteField("title", title)
	_ = w.WriteField("description", description)
	_ = w.WriteField("user_id", userID)
	if err := w.Close(); err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", &buf)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", w.FormDataContentType())

	var out UploadResult
	if err := c.send(request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for the stored user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	body := map[string]string{"email": email, "password": password}
	var out struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/login", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Register creates an account and returns the new user id.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	var out struct {
		Message string `json:"message"`
		UserID  string `json:"user_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/register", nil, body, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return c.send(request, out)
}

func (c *Client) send(request *http.Request, out any) error {
	start := time.Now()
	resp, err := c.HTTP.Do(request)
	if err != nil {
		c.log.Error().Err(err).Str("method", request.Method).Str("url", request.URL.Path).Msg("request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("method", request.Method).
		Str("path", request.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("http")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// Error bodies are best-effort JSON; keep the status when they are not.
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
