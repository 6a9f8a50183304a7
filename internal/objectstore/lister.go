// Package objectstore lists the objects a batch can target. The dashboard
// API is the default source; deployments that keep documents directly in S3
// or Azure Blob Storage can list the bucket instead.
package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/config"
	"github.com/rescale/docbatch/internal/http"
	"github.com/rescale/docbatch/internal/logging"
)

// Lister returns the objects under prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]api.Object, error)
}

// ObjectLister is the subset of *api.Client used by APILister.
type ObjectLister interface {
	ListObjects(ctx context.Context, prefix string) ([]api.Object, error)
}

// APILister lists through the dashboard backend. Retries happen inside the
// API client.
type APILister struct {
	client ObjectLister
}

// NewAPILister wraps client.
func NewAPILister(client ObjectLister) *APILister {
	return &APILister{client: client}
}

// List implements Lister.
func (l *APILister) List(ctx context.Context, prefix string) ([]api.Object, error) {
	return l.client.ListObjects(ctx, prefix)
}

// New returns the lister selected by cfg.Storage.Provider.
func New(ctx context.Context, cfg *config.Config, client *api.Client, logger *logging.Logger) (Lister, error) {
	switch cfg.Storage.Provider {
	case "", config.ProviderAPI:
		if client == nil {
			return nil, fmt.Errorf("api provider requires an API client")
		}
		return NewAPILister(client), nil
	case config.ProviderS3:
		return NewS3Lister(ctx, cfg, logger)
	case config.ProviderAzure:
		return NewAzureLister(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Storage.Provider)
	}
}

// joinPrefix combines the configured storage prefix with a request prefix.
func joinPrefix(base, prefix string) string {
	base = strings.Trim(base, "/")
	prefix = strings.TrimLeft(prefix, "/")
	if base == "" {
		return prefix
	}
	return base + "/" + prefix
}

// relativeName strips the configured storage prefix from a key so names match
// what the dashboard API reports.
func relativeName(base, key string) string {
	base = strings.Trim(base, "/")
	if base == "" {
		return key
	}
	return strings.TrimPrefix(key, base+"/")
}

// retryConfig is the retry policy for storage listing calls.
func retryConfig(log *logging.Logger, provider string) http.RetryConfig {
	cfg := http.DefaultRetryConfig()
	cfg.OnRetry = func(attempt int, err error, errorType http.ErrorType) {
		log.Warn().Str("provider", provider).Int("attempt", attempt).
			Str("error_type", errorType.String()).Err(err).Msg("retrying listing")
	}
	return cfg
}
