package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/docbatch/internal/config"
	"github.com/rescale/docbatch/internal/constants"
	"github.com/rescale/docbatch/internal/http"
	"github.com/rescale/docbatch/internal/logging"
	"github.com/rescale/docbatch/internal/ratelimit"
	"github.com/rescale/docbatch/internal/version"
)

// Batch endpoints under /objects.
const (
	EndpointConvert   = "convert"
	EndpointVectorize = "vectorize"
	EndpointDelete    = "delete"
	EndpointUpload    = "upload"
)

// Object is one entry in the bucket listing.
type Object struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	TimeCreated time.Time `json:"time_created"`
}

type batchRequest struct {
	ObjectNames []string `json:"object_names"`
}

// retryLogger adapts retryablehttp's leveled logger to zerolog.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

// Client talks to the dashboard backend.
//
// Three transports are used: listing goes through retryablehttp with the
// plain request timeout; cancellation uses the same timeout without retries;
// batch and upload requests use the streaming client, which has no overall
// timeout and is never retried.
type Client struct {
	plain   *nethttp.Client
	once    *nethttp.Client
	stream  *nethttp.Client
	baseURL string
	token   string
	limiter *ratelimit.RateLimiter
	log     *logging.Logger
}

// NewClient builds a client from cfg. The token must already be resolved
// into cfg.Token.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty: run 'docbatch config init' or pass --api-url")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	once, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	stream, err := http.NewStreamingClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure streaming client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = once
	retryClient.RetryMax = constants.APIRetryMax
	retryClient.RetryWaitMin = constants.APIRetryWaitMin
	retryClient.RetryWaitMax = constants.APIRetryWaitMax
	retryClient.Logger = &retryLogger{log: logger}
	// Hand the final response back instead of retryablehttp's "giving up" error
	// so CheckResponse can classify it.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		plain:   retryClient.StandardClient(),
		once:    once,
		stream:  stream,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		limiter: ratelimit.NewDefault(),
		log:     logger,
	}, nil
}

// BaseURL returns the backend root all paths are joined to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(constants.RequestIDHeader, uuid.NewString())
	req.Header.Set("User-Agent", constants.AppName+"/"+version.Version)
	return req, nil
}

// ListObjects returns the bucket listing under prefix.
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	path := "/objects"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	req, err := c.newRequest(ctx, nethttp.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.plain.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	var objects []Object
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, fmt.Errorf("failed to decode object listing: %w", err)
	}
	return objects, nil
}

// StartBatch posts {"object_names": names} to /objects/{endpoint} and returns
// the streaming response unread. The caller owns resp.Body and is expected
// to inspect the status itself; only transport failures are returned as errors.
func (c *Client) StartBatch(ctx context.Context, endpoint string, names []string) (*nethttp.Response, error) {
	payload, err := json.Marshal(batchRequest{ObjectNames: names})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := c.newRequest(ctx, nethttp.MethodPost, "/objects/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	c.log.Debug().Str("endpoint", endpoint).Int("objects", len(names)).
		Str("request_id", req.Header.Get(constants.RequestIDHeader)).Msg("starting batch")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	return resp, nil
}

// Upload streams local files as multipart "files" parts to /objects/upload
// and returns the progress stream unread, like StartBatch. Files are opened
// up front so a missing path fails before anything is sent.
func (c *Client) Upload(ctx context.Context, paths []string) (*nethttp.Response, error) {
	files := make([]*os.File, 0, len(paths))
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		files = append(files, f)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer closeAll()
		for _, f := range files {
			part, err := mw.CreateFormFile("files", filepath.Base(f.Name()))
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, f); err != nil {
				pw.CloseWithError(fmt.Errorf("failed to read %s: %w", f.Name(), err))
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := c.newRequest(ctx, nethttp.MethodPost, "/objects/"+EndpointUpload, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	return resp, nil
}

// CancelJob asks the backend to stop a running batch job. It is not retried.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job id is empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, nethttp.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil)
	if err != nil {
		return err
	}

	resp, err := c.once.Do(req)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp); err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}
