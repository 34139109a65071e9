// Package catalog fetches products from the external Catalog Provider and
// normalizes them into domain.ProductSnapshot values. Nothing is cached here;
// every call reaches the provider.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
)

const (
	userAgent    = "storefront-catalog-client/1.0"
	maxBodyBytes = 4 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *zap.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBreaker stops calling the provider for cooldown after threshold
// consecutive unavailability failures.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(cl *Client) {
		cl.breaker = circuitbreaker.New[[]byte](circuitbreaker.Settings{
			Name:         "catalog",
			Threshold:    threshold,
			Cooldown:     cooldown,
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				cl.log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchOne returns the normalized product for id. It fails with
// domain.ErrNotFound when the provider does not know the id and with
// domain.ErrCatalogUnavailable on transport failures, timeouts and 5xx.
func (c *Client) FetchOne(ctx context.Context, id string) (domain.ProductSnapshot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ProductSnapshot{}, domain.NewError(domain.KindValidation, "product id is required")
	}

	body, err := c.get(ctx, "/products/"+url.PathEscape(id), id)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	// FakeStore answers unknown ids with 200 and an empty body
	if isNull(body) {
		return domain.ProductSnapshot{}, notFound(id)
	}

	var raw rawProduct
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.ProductSnapshot{}, domain.Wrap(domain.KindCatalogUnavailable, "catalog returned an unreadable product", err)
	}
	snapshot, ok := normalize(raw, c.now())
	if !ok {
		return domain.ProductSnapshot{}, notFound(id)
	}
	return snapshot, nil
}

// FetchAll returns every product the provider lists, in provider order. An
// empty catalog yields an empty, non-nil slice.
func (c *Client) FetchAll(ctx context.Context) ([]domain.ProductSnapshot, error) {
	body, err := c.get(ctx, "/products", "")
	if err != nil {
		return nil, err
	}

	raws, err := decodeList(body)
	if err != nil {
		return nil, domain.Wrap(domain.KindCatalogUnavailable, "catalog returned an unreadable product list", err)
	}

	now := c.now()
	products := make([]domain.ProductSnapshot, 0, len(raws))
	for _, raw := range raws {
		snapshot, ok := normalize(raw, now)
		if !ok {
			continue
		}
		products = append(products, snapshot)
	}
	return products, nil
}

func (c *Client) get(ctx context.Context, path, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Wrap(domain.KindCatalogUnavailable, "catalog request abandoned", err)
	}

	var (
		body []byte
		err  error
	)
	if c.breaker == nil {
		body, err = c.do(ctx, path, id)
	} else {
		body, err = c.breaker.Execute(func() ([]byte, error) {
			b, err := c.do(ctx, path, id)
			if err != nil && ctx.Err() != nil {
				return nil, callerGone{err}
			}
			return b, err
		})
	}

	var gone callerGone
	switch {
	case err == nil:
		return body, nil
	case errors.As(err, &gone):
		logger.WithContext(ctx, c.log).Debug("catalog request abandoned by caller",
			zap.String("path", path),
			zap.Error(gone.err),
		)
		return nil, gone.err
	case circuitbreaker.IsRejection(err):
		return nil, domain.Wrap(domain.KindCatalogUnavailable, "catalog is temporarily unavailable", err)
	}

	if errors.Is(err, domain.ErrCatalogUnavailable) {
		logger.WithContext(ctx, c.log).Warn("catalog request failed",
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return nil, err
}

// callerGone marks a failure caused by the caller's context ending rather
// than by the provider.
type callerGone struct{ err error }

func (e callerGone) Error() string { return e.err.Error() }
func (e callerGone) Unwrap() error { return e.err }

// countsAsSuccess keeps unknown ids and abandoned calls out of the breaker's
// failure count.
func countsAsSuccess(err error) bool {
	var gone callerGone
	return err == nil || errors.Is(err, domain.ErrNotFound) || errors.As(err, &gone)
}

func (c *Client) do(ctx context.Context, path, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindCatalogUnavailable, "invalid catalog request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindCatalogUnavailable, "catalog request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		if id == "" {
			return nil, domain.NewError(domain.KindNotFound, "product list not found")
		}
		return nil, notFound(id)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, domain.Wrap(domain.KindCatalogUnavailable, "catalog request failed",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.Wrap(domain.KindCatalogUnavailable, "failed to read catalog response", err)
	}
	return body, nil
}

func notFound(id string) *domain.Error {
	return domain.ProductError(domain.KindNotFound, id, fmt.Sprintf("product %s not found", id))
}
