// Package api is the REST side of the chat backend: paged history, attachment
// upload and friend requests.
package api

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

	"github.com/matheus3301/chatline/internal/chat"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every request when Options.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// maxResponseSize caps how much of a response body is decoded.
const maxResponseSize = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	// Cookie is sent verbatim with every request.
	Cookie  string
	Timeout time.Duration
	Decoder chat.Decoder
	// HTTPClient defaults to a plain http.Client.
	HTTPClient *http.Client
}

// Client talks to the backend's REST endpoints.
type Client struct {
	baseURL string
	cookie  string
	timeout time.Duration
	decoder chat.Decoder
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a REST client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Decoder.BaseURL == "" {
		opts.Decoder.BaseURL = opts.BaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		cookie:  opts.Cookie,
		timeout: opts.Timeout,
		decoder: opts.Decoder,
		http:    opts.HTTPClient,
		logger:  logger.Named("api"),
	}
}

type historyResponse struct {
	Messages []chat.WireMessage `json:"messages"`
}

// FetchInitial returns the most recent page of the conversation with contactID.
func (c *Client) FetchInitial(ctx context.Context, contactID string) ([]chat.Message, error) {
	return c.fetch(ctx, contactID, "")
}

// FetchBefore returns the page of messages strictly older than beforeID, newest last.
func (c *Client) FetchBefore(ctx context.Context, contactID, beforeID string) ([]chat.Message, error) {
	return c.fetch(ctx, contactID, beforeID)
}

func (c *Client) fetch(ctx context.Context, contactID, beforeID string) ([]chat.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{"contact_id": {contactID}}
	if beforeID != "" {
		q.Set("before", beforeID)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/get_messages?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chat.ErrHistoryFetchFailed, err)
	}

	start := time.Now()
	var body historyResponse
	if err := c.do(req, &body); err != nil {
		c.logger.Warn("history fetch failed",
			zap.String("contact_id", contactID), zap.String("before", beforeID), zap.Error(err))
		return nil, fmt.Errorf("%w: contact %s: %w", chat.ErrHistoryFetchFailed, contactID, err)
	}
	msgs, err := c.decoder.Messages(body.Messages)
	if err != nil {
		return nil, fmt.Errorf("%w: contact %s: %w", chat.ErrHistoryFetchFailed, contactID, err)
	}
	c.logger.Debug("history fetched",
		zap.String("contact_id", contactID), zap.String("before", beforeID),
		zap.Int("count", len(msgs)), zap.Duration("took", time.Since(start)))
	return msgs, nil
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	File    *struct {
		ID       chat.ID `json:"id"`
		Filename string  `json:"filename"`
	} `json:"file"`
}

// UploadAttachment posts r as multipart field "file" and returns the stored attachment.
func (c *Client) UploadAttachment(ctx context.Context, filename string, r io.Reader) (chat.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("%w: %w", chat.ErrUploadFailed, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return chat.Attachment{}, fmt.Errorf("%w: read %s: %w", chat.ErrUploadFailed, filename, err)
	}
	if err := mw.Close(); err != nil {
		return chat.Attachment{}, fmt.Errorf("%w: %w", chat.ErrUploadFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodPost, "/upload_attachment", &buf)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("%w: %w", chat.ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		if resp.Error != "" {
			return chat.Attachment{}, &chat.UploadError{Reason: resp.Error}
		}
		return chat.Attachment{}, fmt.Errorf("%w: %w", chat.ErrUploadFailed, err)
	}
	if !resp.Success || resp.File == nil || resp.File.ID == "" {
		return chat.Attachment{}, &chat.UploadError{Reason: resp.Error}
	}
	c.logger.Info("attachment uploaded", zap.String("id", string(resp.File.ID)), zap.String("filename", resp.File.Filename))
	return chat.Attachment{
		ID:       string(resp.File.ID),
		Filename: resp.File.Filename,
		URL:      chat.DownloadURL(c.baseURL, string(resp.File.ID)),
	}, nil
}

// UploadFile uploads the file at path.
func (c *Client) UploadFile(ctx context.Context, path string) (chat.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("%w: %w", chat.ErrUploadFailed, err)
	}
	defer func() { _ = f.Close() }()
	return c.UploadAttachment(ctx, path, f)
}

// AddFriend sends a friend request to username.
func (c *Client) AddFriend(ctx context.Context, username string) error {
	payload, err := json.Marshal(map[string]string{"username": username})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodPost, "/add_friend", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(req, &resp); err != nil && resp.Error == "" {
		return fmt.Errorf("add friend %q: %w", username, err)
	}
	if !resp.Success {
		return fmt.Errorf("add friend %q: %s", username, resp.Error)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	return req, nil
}

// do executes req and decodes a JSON body into out. Non-2xx replies are
// errors, but their body is still decoded so callers can read a reason.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, decodeErr)
	}
	return nil
}
