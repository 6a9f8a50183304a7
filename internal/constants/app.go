package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the binary name, config directory and User-Agent.
	AppName = "docbatch"

	// ConfigDir is the directory under the user config root (~/.config/docbatch).
	ConfigDir = "docbatch"
)

// Batch stream engine
const (
	// JobIDHeader carries the server-assigned batch job id on a streaming response.
	JobIDHeader = "X-Job-ID"

	// RequestIDHeader correlates client requests with server logs.
	RequestIDHeader = "X-Request-ID"

	// StreamReadBufferSize - size of each read from a streaming response body (32 KiB)
	StreamReadBufferSize = 32 * 1024

	// MaxStreamLineBytes - longest stream line kept; longer lines are dropped as malformed (1 MiB)
	MaxStreamLineBytes = 1 << 20

	// MaxBatchFiles caps the item list of a run whose request named no files.
	MaxBatchFiles = 10000

	// FileIndexSlack - how far file_index or total_files may run past the
	// requested names before the event is dropped.
	FileIndexSlack = 16

	// DefaultSettleDelay - pause after a "complete" event before reloading the object list.
	// Gives the server time to finish writing derived artifacts.
	DefaultSettleDelay = 1 * time.Second

	// MaxSettleDelay caps the configurable settle delay.
	MaxSettleDelay = 30 * time.Second
)

// Plain API requests
const (
	// APIRequestTimeout - per-request timeout for non-streaming API calls (10 seconds)
	APIRequestTimeout = 10 * time.Second

	// APIRetryMax - retries for idempotent, non-streaming API calls
	APIRetryMax = 3

	// APIRetryWaitMin / APIRetryWaitMax bound the retryablehttp backoff
	APIRetryWaitMin = 500 * time.Millisecond
	APIRetryWaitMax = 5 * time.Second
)

// Retry configuration for storage listing
const (
	// MaxRetries - maximum number of attempts for transient listing errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressRefreshRate - how often terminal progress bars redraw
	ProgressRefreshRate = 150 * time.Millisecond

	// ProgressBarWidth - width of the overlay bar in columns
	ProgressBarWidth = 50
)

// Websocket bridge
const (
	// WSWriteTimeout - deadline for a single websocket frame write
	WSWriteTimeout = 5 * time.Second

	// WSShutdownTimeout - graceful shutdown window for the bridge server
	WSShutdownTimeout = 5 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// ProxyWarmupTimeout - timeout for the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second
)
