package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/config"
	"github.com/rescale/docbatch/internal/http"
	"github.com/rescale/docbatch/internal/logging"
)

// blobPager is the paging surface of runtime.Pager used for listing.
type blobPager interface {
	More() bool
	NextPage(ctx context.Context) (azblob.ListBlobsFlatResponse, error)
}

// AzureLister lists a blob container.
type AzureLister struct {
	container string
	prefix    string
	newPager  func(container, prefix string) blobPager
	log       *logging.Logger
}

// buildSASURL appends the SAS token to the account URL.
func buildSASURL(accountURL, sasToken string) string {
	accountURL = strings.TrimRight(accountURL, "/") + "/"
	sasToken = strings.TrimPrefix(sasToken, "?")
	if sasToken == "" {
		return accountURL
	}
	return accountURL + "?" + sasToken
}

// NewAzureLister builds an azblob client over cfg.Storage.AccountURL with the
// configured SAS token. The bucket names the container.
func NewAzureLister(cfg *config.Config, logger *logging.Logger) (*AzureLister, error) {
	sc := cfg.Storage
	if sc.AccountURL == "" {
		return nil, config.ErrMissingAccountURL
	}
	if sc.Bucket == "" {
		return nil, config.ErrMissingBucket
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	client, err := azblob.NewClientWithNoCredential(buildSASURL(sc.AccountURL, sc.SASToken), &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureLister{
		container: sc.Bucket,
		prefix:    sc.Prefix,
		newPager: func(container, prefix string) blobPager {
			opts := &azblob.ListBlobsFlatOptions{}
			if prefix != "" {
				opts.Prefix = &prefix
			}
			return client.NewListBlobsFlatPager(container, opts)
		},
		log: logger,
	}, nil
}

// List implements Lister.
func (l *AzureLister) List(ctx context.Context, prefix string) ([]api.Object, error) {
	pager := l.newPager(l.container, joinPrefix(l.prefix, prefix))
	retry := retryConfig(l.log, config.ProviderAzure)

	var objects []api.Object
	for pager.More() {
		var page azblob.ListBlobsFlatResponse
		err := http.ExecuteWithRetry(ctx, retry, func(ctx context.Context) error {
			var err error
			page, err = pager.NextPage(ctx)
			return err
		})
		if err != nil {
			if http.ClassifyError(err) == http.ErrorTypeCredential {
				return nil, fmt.Errorf("list container %s: %w: %v", l.container, api.ErrUnauthorized, err)
			}
			return nil, fmt.Errorf("list container %s: %w", l.container, err)
		}
		if page.Segment == nil {
			continue
		}

		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			obj := api.Object{Name: relativeName(l.prefix, *item.Name)}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					obj.Size = *p.ContentLength
				}
				obj.TimeCreated = firstTime(p.CreationTime, p.LastModified)
			}
			objects = append(objects, obj)
		}
	}

	l.log.Debug().Str("container", l.container).Int("objects", len(objects)).Msg("listed azure container")
	return objects, nil
}

func firstTime(ts ...*time.Time) time.Time {
	for _, t := range ts {
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}
