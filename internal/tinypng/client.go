// Package tinypng provides a client for the TinyPNG image compression
// service (api.tinify.com). It covers the three calls the compression
// pipeline needs:
//
//  1. Shrink: upload raw image bytes, receiving a remote result location
//     and the account's monthly compression count
//  2. Resize: ask the service to resize a previously shrunk result,
//     receiving the resized image bytes
//  3. Download: fetch the compressed result bytes unmodified
//
// The service authenticates every mutating call with HTTP basic auth using
// the fixed user "api" and the account key as the password.
package tinypng

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultBaseURL is the TinyPNG API base URL.
	defaultBaseURL = "https://api.tinify.com"

	// defaultTimeout is the HTTP client timeout for API calls. Uploads of
	// multi-megabyte photos over slow links need more headroom than a
	// typical JSON API.
	defaultTimeout = 60 * time.Second

	// authUser is the fixed basic-auth user; the account key is the password.
	authUser = "api"

	// compressionCountHeader carries the account's month-to-date count.
	compressionCountHeader = "Compression-Count"
)

// Client provides methods for compressing images via the TinyPNG API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// ClientOption configures a Client at construction.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client. The caller's client
// controls timeouts, proxies and TLS settings.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewClient creates a TinyPNG API client for the given account key.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- API response types ---

// APIError is a non-success response from the service, with the error class
// and message parsed from the JSON body when present.
type APIError struct {
	StatusCode int
	ErrType    string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrType != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.ErrType, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// shrinkResponse is the JSON body of a successful POST /shrink. The
// authoritative result handle is the Location header; the body sizes are
// used for debug logging only.
type shrinkResponse struct {
	Input struct {
		Size int64  `json:"size"`
		Type string `json:"type"`
	} `json:"input"`
	Output struct {
		Size   int64   `json:"size"`
		Type   string  `json:"type"`
		Width  int     `json:"width"`
		Height int     `json:"height"`
		Ratio  float64 `json:"ratio"`
		URL    string  `json:"url"`
	} `json:"output"`
}

// ShrinkResult describes a successful compression upload.
type ShrinkResult struct {
	// Location is the remote URL of the compressed result.
	Location string
	// CompressionCount is the account's month-to-date compression count,
	// zero when the service omits or garbles the header.
	CompressionCount int
}

// ResizeCommand is the resize instruction sent to the service. Zero
// dimensions are omitted from the wire format.
type ResizeCommand struct {
	Method string `json:"method"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// --- API calls ---

// Shrink uploads raw image bytes for compression. contentType must be the
// MIME type matching the bytes (image/png or image/jpeg).
func (c *Client) Shrink(ctx context.Context, data []byte, contentType string) (*ShrinkResult, error) {
	log.Debug().Int("bytes", len(data)).Str("contentType", contentType).Msg("Uploading image for compression")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shrink", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(authUser, c.apiKey)
	req.Header.Set("Content-Type", contentType)

	httpResp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, apiError(httpResp.StatusCode, body)
	}

	location := httpResp.Header.Get("Location")
	if location == "" {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Message:    "response has no Location header",
		}
	}

	result := &ShrinkResult{
		Location:         location,
		CompressionCount: parseCompressionCount(httpResp.Header.Get(compressionCountHeader)),
	}

	// The body duplicates the sizes we can measure locally; log it for
	// troubleshooting and move on if it does not parse.
	var parsed shrinkResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Output.Size > 0 {
		log.Debug().
			Int64("inputBytes", parsed.Input.Size).
			Int64("outputBytes", parsed.Output.Size).
			Float64("ratio", parsed.Output.Ratio).
			Str("location", location).
			Msg("Compression accepted")
	}

	return result, nil
}

// Resize asks the service to resize the result at location and returns the
// resized image bytes. The result identifier is the last path segment of
// the location URL.
func (c *Client) Resize(ctx context.Context, location string, cmd ResizeCommand) ([]byte, error) {
	id, err := outputID(location)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("resultId", id).Str("method", cmd.Method).Int("width", cmd.Width).Int("height", cmd.Height).Msg("Requesting remote resize")

	payload, err := json.Marshal(struct {
		Resize ResizeCommand `json:"resize"`
	}{cmd})
	if err != nil {
		return nil, fmt.Errorf("encode resize command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/output/"+id, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(authUser, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, apiError(httpResp.StatusCode, body)
	}
	if len(body) == 0 {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Message:    "resize response has no image data",
		}
	}
	return body, nil
}

// Download streams the compressed result at location into w byte-for-byte
// and returns the number of bytes written. The result URL needs no
// authentication.
func (c *Client) Download(ctx context.Context, location string, w io.Writer) (int64, error) {
	log.Debug().Str("location", location).Msg("Downloading compressed image")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", time.Since(start)).Err(err).Msg("Compression service response")
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()
	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", time.Since(start)).Msg("Compression service response")

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, 64<<10))
		if readErr != nil {
			return 0, fmt.Errorf("read error response: %w", readErr)
		}
		return 0, apiError(httpResp.StatusCode, body)
	}

	n, err := io.Copy(w, httpResp.Body)
	if err != nil {
		return n, fmt.Errorf("download compressed image: %w", err)
	}
	return n, nil
}

// --- Internal helpers ---

// do executes the request and returns the response with its body fully read.
func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Compression service response")
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Compression service response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return httpResp, body, nil
}

// apiError builds an APIError from a non-success response, parsing the
// service's {"error": ..., "message": ...} body when it is JSON.
func apiError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Error != "" || parsed.Message != "") {
		apiErr.ErrType = parsed.Error
		apiErr.Message = strings.TrimSpace(parsed.Message)
	} else {
		apiErr.Message = truncate(strings.TrimSpace(string(body)), 200)
	}
	return apiErr
}

// outputID extracts the result identifier from a shrink result location.
func outputID(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse result location: %w", err)
	}
	id := path.Base(u.Path)
	if id == "" || id == "." || id == "/" {
		return "", fmt.Errorf("result location %q has no identifier", location)
	}
	return id, nil
}

// parseCompressionCount reads the monthly count header, returning zero when
// it is absent or unparseable.
func parseCompressionCount(value string) int {
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		log.Debug().Str("header", value).Msg("Unparseable compression count header")
		return 0
	}
	return n
}

// truncate shortens s to max characters for log output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
