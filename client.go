package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	apiPath         = "rest/latest"
	defaultPageSize = 50

	authBasic = "basic"
	authOAuth = "oauth"
)

// downloadChunkSize is the buffer size for streaming attachment content.
const downloadChunkSize = 32 * 1024

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// Client provides access to the requirements server's REST API.
type Client struct {
	baseURL    string
	authMode   string
	username   string
	password   string
	token      string
	pageSize   int
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPageSize overrides the listing page size.
func WithPageSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL, authMode, username, password string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("server base URL required")
	}
	if authMode != authBasic && authMode != authOAuth {
		return nil, fmt.Errorf("unknown auth mode %q (want %q or %q)", authMode, authBasic, authOAuth)
	}
	if username == "" || password == "" {
		return nil, errors.New("credentials required")
	}

	client := &Client{
		baseURL:  baseURL,
		authMode: authMode,
		username: username,
		password: password,
		pageSize: defaultPageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// apiURL builds an absolute URL for an API endpoint path.
func (c *Client) apiURL(endpoint string) string {
	return c.baseURL + "/" + apiPath + "/" + strings.TrimPrefix(endpoint, "/")
}

// absoluteURL resolves a possibly relative reference against the server base.
func (c *Client) absoluteURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return c.baseURL + "/" + strings.TrimPrefix(ref, "/")
}

// Login acquires an OAuth bearer token via the client-credentials grant.
// Basic auth needs no session, so Login is a no-op for it.
func (c *Client) Login(ctx context.Context) error {
	if c.authMode != authOAuth {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	tokenURL := c.baseURL + "/rest/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, URL: tokenURL}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if payload.AccessToken == "" {
		return errors.New("token response missing access_token")
	}

	c.token = payload.AccessToken
	return nil
}

// authorize attaches credentials to an outgoing request.
func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return
	}
	req.SetBasicAuth(c.username, c.password)
}

// newRequest builds an authorized request with the given context.
func (c *Client) newRequest(ctx context.Context, method, requestURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.authorize(req)
	return req, nil
}

type itemsResponse struct {
	Data []Item `json:"data"`
}

type itemResponse struct {
	Data Item `json:"data"`
}

// ListProjectItems fetches every item in the project, one page at a time.
// A page shorter than the page size terminates the loop; the API's total
// count is not consulted.
func (c *Client) ListProjectItems(ctx context.Context, projectID int) ([]Item, error) {
	var all []Item
	for startAt := 0; ; startAt += c.pageSize {
		endpoint, err := url.Parse(c.apiURL("items"))
		if err != nil {
			return nil, fmt.Errorf("parsing items URL: %w", err)
		}
		params := url.Values{}
		params.Set("project", strconv.Itoa(projectID))
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", strconv.Itoa(c.pageSize))
		endpoint.RawQuery = params.Encode()

		req, err := c.newRequest(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("listing items at offset %d: %w", startAt, err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint.String()}
		}

		var page itemsResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding items page: %w", err)
		}

		all = append(all, page.Data...)
		if len(page.Data) < c.pageSize {
			break
		}
	}
	return all, nil
}

// GetItem fetches a single item by its internal id.
func (c *Client) GetItem(ctx context.Context, itemID int) (*Item, error) {
	endpoint := c.apiURL("items/" + strconv.Itoa(itemID))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching item %d: %w", itemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	var payload itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding item %d: %w", itemID, err)
	}
	return &payload.Data, nil
}

type descriptionUpdate struct {
	Fields struct {
		Description string `json:"description"`
	} `json:"fields"`
}

// UpdateItemDescription submits a partial update carrying only the
// description field.
func (c *Client) UpdateItemDescription(ctx context.Context, itemID int, html string) error {
	var update descriptionUpdate
	update.Fields.Description = html

	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encoding item update: %w", err)
	}

	endpoint := c.apiURL("items/" + strconv.Itoa(itemID))
	req, err := c.newRequest(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating item %d: %w", itemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}
	return nil
}

var contentDispositionFilename = regexp.MustCompile(`filename="([^"]+)"`)

// StagedFile describes a downloaded attachment waiting for re-upload.
type StagedFile struct {
	Path string // local path of the staged copy
	Name string // original attachment filename
}

// downloadToFile streams the response for requestURL into the staging area.
// The filename comes from the Content-Disposition header when present,
// otherwise from the URL path. An empty stagingDir stages into the working
// directory under a temp_ prefix.
func (c *Client) downloadToFile(ctx context.Context, requestURL, stagingDir string) (StagedFile, error) {
	req, err := c.newRequest(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return StagedFile{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StagedFile{}, fmt.Errorf("downloading %s: %w", requestURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StagedFile{}, &HTTPError{StatusCode: resp.StatusCode, URL: requestURL}
	}

	filename := filenameFromResponse(resp, requestURL)

	var stagedPath string
	if stagingDir != "" {
		if err := os.MkdirAll(stagingDir, 0755); err != nil {
			return StagedFile{}, fmt.Errorf("creating staging directory: %w", err)
		}
		stagedPath = filepath.Join(stagingDir, filename)
	} else {
		stagedPath = "temp_" + filename
	}

	f, err := os.Create(stagedPath)
	if err != nil {
		return StagedFile{}, fmt.Errorf("creating staged file: %w", err)
	}

	buf := make([]byte, downloadChunkSize)
	_, err = io.CopyBuffer(f, resp.Body, buf)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(stagedPath)
		return StagedFile{}, fmt.Errorf("writing staged file: %w", err)
	}

	return StagedFile{Path: stagedPath, Name: filename}, nil
}

// filenameFromResponse derives an attachment filename from the response
// headers, falling back to the URL path.
func filenameFromResponse(resp *http.Response, requestURL string) string {
	disposition := resp.Header.Get("Content-Disposition")
	if match := contentDispositionFilename.FindStringSubmatch(disposition); match != nil {
		return match[1]
	}

	if parsed, err := url.Parse(requestURL); err == nil {
		if base := path.Base(parsed.Path); base != "." && base != "/" && base != "file" {
			return base
		}
	}
	return "attachment"
}
