package gifts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/core-coin/mintviewer/pkg/logger"
)

// CatalogResponse is the document served at GIFT_CATALOG_URL. A bare JSON
// array of names is accepted as well.
type CatalogResponse struct {
	Gifts []string `json:"gifts"`
}

// Loader fetches the gift catalog once at startup.
type Loader struct {
	logger *logger.Logger
	url    string
	client *http.Client

	attempts uint
	delay    time.Duration
}

// NewLoader creates a Loader for url. An empty url means the built-in catalog.
func NewLoader(logger *logger.Logger, url string) *Loader {
	return &Loader{
		logger:   logger,
		url:      url,
		client:   &http.Client{Timeout: 30 * time.Second},
		attempts: 3,
		delay:    time.Second,
	}
}

// Load returns the remote catalog, or the built-in one when no URL is set or
// the remote catalog cannot be fetched.
func (l *Loader) Load(ctx context.Context) *Catalog {
	if l.url == "" {
		return Default()
	}

	var names []string
	err := retry.Do(
		func() error {
			var err error
			names, err = l.fetch(ctx)
			return err
		},
		retry.Attempts(l.attempts),
		retry.Delay(l.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			l.logger.Warnw("Retrying gift catalog fetch", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		l.logger.Errorw("Failed to fetch gift catalog, using built-in list", "url", l.url, "error", err)
		return Default()
	}

	catalog := NewCatalog(names)
	if catalog.Len() == 0 {
		l.logger.Warnw("Remote gift catalog is empty, using built-in list", "url", l.url)
		return Default()
	}
	l.logger.Infow("Loaded gift catalog", "url", l.url, "gifts", catalog.Len())
	return catalog
}

func (l *Loader) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, http.NoBody)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gift catalog: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gift catalog: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var names []string
	if err := json.Unmarshal(body, &names); err == nil {
		return names, nil
	}
	var doc CatalogResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to decode gift catalog: %w", err))
	}
	return doc.Gifts, nil
}
