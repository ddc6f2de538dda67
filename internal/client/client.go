// Package client is a Go client for the docshelf /ui/api surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/upload"
)

const apiPrefix = "/ui/api"

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == status
}

// retryLogger implements the retryablehttp.LeveledLogger interface on top of
// the global zap logger.
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	logging.S().Errorw("[retry] "+msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	logging.S().Debugw("[retry] "+msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	logging.S().Warnw("[retry] "+msg, keysAndValues...)
}

type noRetryKey struct{}

// idempotent reports whether a request with method may be sent twice
// without a second side effect.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// checkRetry applies the default policy, except for requests marked as
// not retryable. A POST that failed mid-flight may already have been
// applied by the server.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Value(noRetryKey{}) != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	// RetryMax is the number of retries of JSON calls. Zero means the
	// default of 3, a negative value disables retries.
	RetryMax      int
	UploadTimeout time.Duration
	// HTTPClient is the underlying transport client. Defaults to a new
	// http.Client.
	HTTPClient *http.Client
}

// Client talks to a docshelf server.
type Client struct {
	httpClient    *http.Client
	uploadClient  *http.Client
	baseURL       string
	uploadTimeout time.Duration

	mu    sync.RWMutex
	token string
}

// New creates a new Client.
func New(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	switch {
	case opts.RetryMax == 0:
		retryClient.RetryMax = 3
	case opts.RetryMax < 0:
		retryClient.RetryMax = 0
	default:
		retryClient.RetryMax = opts.RetryMax
	}
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{}
	retryClient.CheckRetry = checkRetry
	// Hand the last response back so callers see the server's error body.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	timeout := opts.UploadTimeout
	if timeout <= 0 {
		timeout = upload.DefaultTimeout
	}

	return &Client{
		httpClient:    retryClient.StandardClient(),
		uploadClient:  base,
		baseURL:       strings.TrimSuffix(opts.BaseURL, "/"),
		uploadTimeout: timeout,
		token:         opts.Token,
	}
}

// Token returns the current auth token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the auth token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) url(path string) string {
	return c.baseURL + apiPrefix + path
}

func (c *Client) authorize(req *http.Request) {
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// doRequest performs a JSON request. body may be nil.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, accept string) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	if !idempotent(method) {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// checkResponse turns non-2xx responses into an *HTTPError.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	he := &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &apiErr) == nil {
		he.Code, he.Message = apiErr.Code, apiErr.Message
	}
	return he
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	}, "text/plain")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errors.New("server returned an empty token")
	}
	c.SetToken(token)
	return token, nil
}

// Logout revokes the current session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.doJSON(ctx, http.MethodGet, "/profile", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Users lists all users. Admin only.
func (c *Client) Users(ctx context.Context) ([]models.AppUser, error) {
	var users []models.AppUser
	if err := c.doJSON(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListDocuments returns the document tree. The tree is requested as msgpack.
func (c *Client) ListDocuments(ctx context.Context) ([]*models.HashDoc, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/documents", nil, "application/msgpack")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var docs []*models.HashDoc
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/msgpack") {
		err = msgpack.NewDecoder(resp.Body).Decode(&docs)
	} else {
		err = json.NewDecoder(resp.Body).Decode(&docs)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding document tree: %w", err)
	}
	return docs, nil
}

// Metadata returns the stored metadata of a document.
func (c *Client) Metadata(ctx context.Context, id string) (*models.HashDocMetadata, error) {
	var md models.HashDocMetadata
	if err := c.doJSON(ctx, http.MethodGet, "/documents/"+url.PathEscape(id)+"/metadata", nil, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// CreateFolder creates a folder under parent and returns it as a tree node.
func (c *Client) CreateFolder(ctx context.Context, name, parent string) (*models.HashDoc, error) {
	var doc models.Document
	err := c.doJSON(ctx, http.MethodPost, "/folders", map[string]string{
		"name":     name,
		"parentId": parent,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return &models.HashDoc{
		ID:           doc.ID,
		Name:         doc.Name,
		Type:         doc.Type,
		Parent:       doc.Parent,
		LastModified: time.Now().UTC(),
	}, nil
}

// UpdateRequest renames and/or moves a document.
type UpdateRequest struct {
	Name            string `json:"name,omitempty"`
	ParentID        string `json:"parentId,omitempty"`
	SetParentToRoot bool   `json:"setParentToRoot,omitempty"`
}

// UpdateDocument applies req to a document.
func (c *Client) UpdateDocument(ctx context.Context, id string, req UpdateRequest) error {
	return c.doJSON(ctx, http.MethodPut, "/documents/"+url.PathEscape(id), req, nil)
}

// RenameDocument changes the visible name of a document.
func (c *Client) RenameDocument(ctx context.Context, id, name string) error {
	return c.UpdateDocument(ctx, id, UpdateRequest{Name: name})
}

// DeleteDocument removes a document or folder.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil)
}

// Download writes the content of a document to w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil, "*/*")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("downloading %s: %w", id, err)
	}
	return n, nil
}

// Upload starts uploading f. onChange receives every state change of the
// file and may be nil.
func (c *Client) Upload(f *upload.UploadableFile, onChange func(upload.FileState)) *upload.Transfer {
	logging.Debug("starting upload", zap.String("id", f.ID), zap.String("name", f.Name), zap.Int64("size", f.Size))
	return upload.Start(c, f, c.uploadTimeout, onChange)
}

// UploadTimeout returns the time limit of a single upload.
func (c *Client) UploadTimeout() time.Duration { return c.uploadTimeout }
