// Package renderer talks to the remote render service: the scene job list,
// the render endpoint and the resource store.
//
// Every call is a single attempt. Retries belong to the caller, which decides
// based on the error code (see errors.Retryable).
package renderer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"renderpull/internal/pkg/errors"
)

// Options configures the client.
type Options struct {
	// BaseURL is the API root, e.g. http://clara.io/api/.
	BaseURL string

	// ResourcesURL is the artifact store root, e.g. http://resources.clara.io/.
	ResourcesURL string

	// User and Key are sent as HTTP basic auth on every request.
	User string
	Key  string

	// Timeout for individual requests.
	// Default: 5m
	Timeout time.Duration

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 16
	MaxIdleConnsPerHost int
}

// Client is an HTTP client for the render service.
type Client struct {
	baseURL      string
	resourcesURL string
	user         string
	key          string
	client       *http.Client
}

// NewClient creates a new render service client.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxIdleConnsPerHost == 0 {
		opts.MaxIdleConnsPerHost = 16
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL:      opts.BaseURL,
		resourcesURL: opts.ResourcesURL,
		user:         opts.User,
		key:          opts.Key,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
	}
}

// ListJobs fetches the job list of a scene.
//
// An empty body, a non-JSON content type or an undecodable document returns
// CodeEmptyResponse. Entries that fail to decode on their own (a string
// time, a fractional width) are dropped and the rest of the list is kept.
func (c *Client) ListJobs(ctx context.Context, sceneID string) ([]Job, error) {
	const op = "renderer.jobs"

	u, err := url.JoinPath(c.baseURL, "scenes", sceneID, "jobs")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, op, "build url")
	}

	p, err := c.get(ctx, op, u)
	if err != nil {
		return nil, err
	}

	if len(p.Body) == 0 {
		e := errors.New(errors.CodeEmptyResponse, "empty job list")
		e.Op = op
		return nil, e
	}
	if !isJSON(p.ContentType) {
		e := errors.Newf(errors.CodeEmptyResponse, "job list has content type %q", p.ContentType)
		e.Op = op
		return nil, e
	}

	jobs, err := decodeJobs(p.Body)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeEmptyResponse, op, "decode job list")
	}
	return jobs, nil
}

// decodeJobs decodes a job list entry by entry. It fails only when the
// document is not an array or when no entry decodes.
func decodeJobs(body []byte) ([]Job, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(raw))
	var firstErr error
	for _, entry := range raw {
		var j Job
		if err := json.Unmarshal(entry, &j); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		jobs = append(jobs, j)
	}
	if len(jobs) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return jobs, nil
}

// Render requests a frame render. The response streams the rendered image.
func (c *Client) Render(ctx context.Context, sceneID string, q RenderQuery) (*Payload, error) {
	const op = "renderer.render"

	u, err := url.JoinPath(c.baseURL, "scenes", sceneID, "render")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, op, "build url")
	}

	v := url.Values{}
	v.Set("time", strconv.Itoa(q.Time))
	v.Set("pass", q.Pass)
	v.Set("width", strconv.Itoa(q.Width))
	v.Set("height", strconv.Itoa(q.Height))

	return c.get(ctx, op, u+"?"+v.Encode())
}

// Resource fetches a stored artifact by content hash.
func (c *Client) Resource(ctx context.Context, hash string) (*Payload, error) {
	const op = "renderer.resource"

	u, err := url.JoinPath(c.resourcesURL, hash)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, op, "build url")
	}
	return c.get(ctx, op, u)
}

// get performs one authenticated GET and reads the whole body.
// A body cut short by the server is returned as is so the caller can compare
// it with the declared length.
func (c *Client) get(ctx context.Context, op, rawURL string) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, op, "create request")
	}
	req.SetBasicAuth(c.user, c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Cancelled(ctx.Err(), op)
		}
		return nil, errors.Transport(err, op)
	}
	defer resp.Body.Close()

	if err := checkStatusCode(op, resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil && !stderrors.Is(err, io.ErrUnexpectedEOF) {
		if ctx.Err() != nil {
			return nil, errors.Cancelled(ctx.Err(), op)
		}
		return nil, errors.Transport(err, op)
	}

	return &Payload{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Body:          body,
	}, nil
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(op string, code int) error {
	var c errors.Code
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		c = errors.CodeNotFound
	case code == http.StatusForbidden:
		c = errors.CodeForbidden
	case code == http.StatusUnauthorized:
		c = errors.CodeUnauthorized
	case code >= 500:
		c = errors.CodeUnavailable
	default:
		c = errors.CodeInternal
	}
	e := errors.Newf(c, "unexpected status code: %d", code)
	e.Op = op
	return e.WithField("status", code)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// IsImage reports whether a content type is an image type.
func IsImage(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.TrimSpace(contentType), "image/")
	}
	return strings.HasPrefix(mt, "image/")
}
