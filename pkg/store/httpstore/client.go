// Package httpstore is a remote.Store backed by the item store REST API.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/auth"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
	"github.com/BobSilent/aggregator-cli/pkg/tracing"
)

var (
	_ remote.Store    = (*Store)(nil)
	_ remote.Recycler = (*Store)(nil)
	_ remote.Locator  = (*Store)(nil)
)

const (
	// ItemsPath is where the API serves items, relative to the server URL.
	ItemsPath = "/api/items"

	// RequestIDHeader carries a per-request id the server echoes back.
	RequestIDHeader = "X-Request-ID"

	// ContentTypePatch is sent with patch documents.
	ContentTypePatch = "application/json-patch+json"

	defaultChunkSize   = 100
	defaultConcurrency = 4
)

// Config holds configuration for the client.
type Config struct {
	ServerURL  string
	Auth       auth.Provider // Optional: defaults to auth.None
	HTTPClient *http.Client  // Optional: defaults to 30s timeout
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64
	Burst     int
	// ChunkSize is the number of ids per FetchMany request.
	ChunkSize int
	// Concurrency bounds the parallel requests of one FetchMany.
	Concurrency int
	Logger      *slog.Logger
}

// Store talks to a remote item store over HTTP.
type Store struct {
	http    *http.Client
	base    string
	auth    auth.Provider
	limiter *rate.Limiter
	chunk   int
	conc    int
	log     *slog.Logger
}

// New creates a client for cfg.ServerURL.
func New(cfg Config) (*Store, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if _, err := url.Parse(cfg.ServerURL); err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	s := &Store{
		http:    cfg.HTTPClient,
		base:    strings.TrimRight(cfg.ServerURL, "/"),
		auth:    cfg.Auth,
		limiter: rate.NewLimiter(rate.Inf, 0),
		chunk:   cfg.ChunkSize,
		conc:    cfg.Concurrency,
		log:     cfg.Logger,
	}
	if s.http == nil {
		s.http = &http.Client{Timeout: 30 * time.Second}
	}
	if s.auth == nil {
		s.auth = auth.None{}
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	if s.chunk <= 0 {
		s.chunk = defaultChunkSize
	}
	if s.conc <= 0 {
		s.conc = defaultConcurrency
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	s.log = s.log.With(logger.Scope("httpstore"))
	return s, nil
}

// ItemURL implements remote.Locator.
func (s *Store) ItemURL(id itemid.ID) string {
	return itemid.URL(s.base+ItemsPath, id)
}

func (s *Store) itemPath(id int64, suffix ...string) string {
	return s.base + ItemsPath + "/" + strconv.FormatInt(id, 10) + strings.Join(suffix, "")
}

// FetchByID implements remote.Store.
func (s *Store) FetchByID(ctx context.Context, id int64, rev remote.Revision) (*remote.Snapshot, error) {
	ctx, span := tracing.Start(ctx, "httpstore.fetch",
		attribute.Int64("itemsync.item.id", id),
		attribute.Int("itemsync.item.rev", int(rev)),
	)
	defer span.End()

	reqURL := s.itemPath(id)
	if rev != remote.Latest {
		reqURL += "?rev=" + strconv.Itoa(int(rev))
	}
	var snap remote.Snapshot
	if err := s.getJSON(ctx, reqURL, &snap); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	return &snap, nil
}

type listResponse struct {
	Items []*remote.Snapshot `json:"items"`
}

// FetchMany implements remote.Store. Ids are requested in chunks, in
// parallel; the result keeps the order of ids.
func (s *Store) FetchMany(ctx context.Context, ids []int64) ([]*remote.Snapshot, error) {
	ctx, span := tracing.Start(ctx, "httpstore.fetch_many", attribute.Int("itemsync.items", len(ids)))
	defer span.End()

	var chunks [][]int64
	for start := 0; start < len(ids); start += s.chunk {
		chunks = append(chunks, ids[start:min(start+s.chunk, len(ids))])
	}

	parts := make([][]*remote.Snapshot, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.conc)
	for i, chunk := range chunks {
		g.Go(func() error {
			strs := make([]string, len(chunk))
			for j, id := range chunk {
				strs[j] = strconv.FormatInt(id, 10)
			}
			var resp listResponse
			if err := s.getJSON(gctx, s.base+ItemsPath+"?ids="+strings.Join(strs, ","), &resp); err != nil {
				return err
			}
			parts[i] = resp.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	out := make([]*remote.Snapshot, 0, len(ids))
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// Create implements remote.Store.
func (s *Store) Create(ctx context.Context, doc jsonpatch.Document) (*remote.Created, error) {
	ctx, span := tracing.Start(ctx, "httpstore.create", attribute.Int("itemsync.patch.ops", len(doc)))
	defer span.End()

	var created remote.Created
	if err := s.sendPatch(ctx, http.MethodPost, s.base+ItemsPath, doc, &created); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	return &created, nil
}

// ApplyPatch implements remote.Store.
func (s *Store) ApplyPatch(ctx context.Context, id int64, doc jsonpatch.Document) (int, error) {
	ctx, span := tracing.Start(ctx, "httpstore.patch",
		attribute.Int64("itemsync.item.id", id),
		attribute.Int("itemsync.patch.ops", len(doc)),
	)
	defer span.End()

	var saved remote.Created
	if err := s.sendPatch(ctx, http.MethodPatch, s.itemPath(id), doc, &saved); err != nil {
		tracing.Fail(span, err)
		return 0, err
	}
	return saved.Rev, nil
}

// Recycle implements remote.Recycler.
func (s *Store) Recycle(ctx context.Context, id int64) (int, error) {
	return s.postAction(ctx, id, "recycle")
}

// Restore implements remote.Recycler.
func (s *Store) Restore(ctx context.Context, id int64) (int, error) {
	return s.postAction(ctx, id, "restore")
}

func (s *Store) postAction(ctx context.Context, id int64, action string) (int, error) {
	ctx, span := tracing.Start(ctx, "httpstore."+action, attribute.Int64("itemsync.item.id", id))
	defer span.End()

	var saved remote.Created
	if err := s.do(ctx, http.MethodPost, s.itemPath(id, "/", action), "", nil, &saved); err != nil {
		tracing.Fail(span, err)
		return 0, err
	}
	return saved.Rev, nil
}

// Health checks that the server is reachable.
func (s *Store) Health(ctx context.Context) error {
	return s.getJSON(ctx, s.base+"/health", nil)
}

// Close releases idle HTTP connections.
func (s *Store) Close() {
	s.http.CloseIdleConnections()
}

// =============================================================================
// Internal helpers
// =============================================================================

func (s *Store) getJSON(ctx context.Context, reqURL string, result any) error {
	return s.do(ctx, http.MethodGet, reqURL, "", nil, result)
}

func (s *Store) sendPatch(ctx context.Context, method, reqURL string, doc jsonpatch.Document, result any) error {
	body, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal patch: %w", err)
	}
	return s.do(ctx, method, reqURL, ContentTypePatch, body, result)
}

// prepareRequest creates an authenticated request with a fresh request id
// and the trace context of ctx.
func (s *Store) prepareRequest(ctx context.Context, method, reqURL, contentType string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := s.auth.Authenticate(req); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// do sends the request, refreshing credentials and retrying once when the
// server answers 401, and decodes a JSON response into result.
func (s *Store) do(ctx context.Context, method, reqURL, contentType string, body []byte, result any) error {
	resp, err := s.send(ctx, method, reqURL, contentType, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if err := s.auth.Refresh(ctx); err != nil {
			return apperror.ErrUnauthorized.WithInternal(err)
		}
		if resp, err = s.send(ctx, method, reqURL, contentType, body); err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ParseErrorResponse(resp)
	}

	if result != nil {
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

func (s *Store) send(ctx context.Context, method, reqURL, contentType string, body []byte) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := s.prepareRequest(ctx, method, reqURL, contentType, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	s.log.DebugContext(ctx, "request",
		slog.String("method", method),
		slog.String("url", reqURL),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", req.Header.Get(RequestIDHeader)),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// ParseErrorResponse parses an HTTP error response into an *apperror.Error
// so callers can match it with errors.Is.
func ParseErrorResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperror.Decode(resp.StatusCode, "", fmt.Sprintf("failed to read error response: %v", err), nil)
	}

	var apiErr struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apperror.Decode(resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message, apiErr.Error.Details)
	}

	// Fallback to plain text
	return apperror.Decode(resp.StatusCode, "", strings.TrimSpace(string(body)), nil)
}
