package itemstore

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/BobSilent/aggregator-cli/internal/config"
	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

// Pinger is implemented by backends with a connection to check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves a remote.Store over REST.
type Handler struct {
	store    remote.Store
	maxBatch int
	startAt  time.Time
	log      *slog.Logger
}

// NewHandler creates a new item store handler
func NewHandler(store remote.Store, cfg *config.Config, log *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		maxBatch: cfg.MaxBatchSize,
		startAt:  time.Now(),
		log:      log.With(logger.Scope("itemstore")),
	}
}

// ListResponse is the body of GET /api/items.
type ListResponse struct {
	Items []*remote.Snapshot `json:"items"`
}

// SavedResponse is returned by every write.
type SavedResponse struct {
	ID  int64  `json:"id"`
	Rev int    `json:"rev"`
	URL string `json:"url,omitempty"`
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NewBadRequest("item id must be a positive integer")
	}
	return id, nil
}

func readPatch(c echo.Context) (jsonpatch.Document, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, apperror.NewBadRequest("failed to read request body")
	}
	if len(body) == 0 {
		return jsonpatch.Document{}, nil
	}
	doc, err := jsonpatch.Decode(body)
	if err != nil {
		return nil, apperror.NewBadRequest("request body is not a JSON patch document").WithInternal(err)
	}
	return doc, nil
}

// Get returns the head of an item, or the revision given by ?rev.
func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rev := remote.Latest
	if s := c.QueryParam("rev"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return apperror.NewBadRequest("rev must be a positive integer")
		}
		rev = remote.Revision(n)
	}

	snap, err := h.store.FetchByID(c.Request().Context(), id, rev)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// List returns the heads of the items in ?ids, skipping unknown ids.
func (h *Handler) List(c echo.Context) error {
	raw := c.QueryParam("ids")
	if raw == "" {
		return apperror.NewBadRequest("ids is required")
	}

	parts := strings.Split(raw, ",")
	if len(parts) > h.maxBatch {
		return apperror.NewBadRequest("too many ids").WithDetails(map[string]any{"max": h.maxBatch})
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return apperror.NewBadRequest("ids must be positive integers").WithDetails(map[string]any{"id": p})
		}
		ids = append(ids, id)
	}

	snaps, err := h.store.FetchMany(c.Request().Context(), ids)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListResponse{Items: snaps})
}

// Create applies the patch document in the body to a new item.
func (h *Handler) Create(c echo.Context) error {
	doc, err := readPatch(c)
	if err != nil {
		return err
	}
	created, err := h.store.Create(c.Request().Context(), doc)
	if err != nil {
		return err
	}

	h.log.Info("item created", slog.Int64("id", created.ID))
	c.Response().Header().Set(echo.HeaderLocation, created.URL)
	return c.JSON(http.StatusCreated, SavedResponse{ID: created.ID, Rev: created.Rev, URL: created.URL})
}

// Patch applies the patch document in the body to an item.
func (h *Handler) Patch(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	doc, err := readPatch(c)
	if err != nil {
		return err
	}

	rev, err := h.store.ApplyPatch(c.Request().Context(), id, doc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SavedResponse{ID: id, Rev: rev})
}

// Recycle moves an item to the recycle bin.
func (h *Handler) Recycle(c echo.Context) error {
	return h.setDeleted(c, true)
}

// Restore takes an item out of the recycle bin.
func (h *Handler) Restore(c echo.Context) error {
	return h.setDeleted(c, false)
}

func (h *Handler) setDeleted(c echo.Context, deleted bool) error {
	rc, ok := h.store.(remote.Recycler)
	if !ok {
		return apperror.NewRejected("store has no recycle bin")
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	call := rc.Restore
	if deleted {
		call = rc.Recycle
	}
	rev, err := call(c.Request().Context(), id)
	if err != nil {
		return err
	}

	resp := SavedResponse{ID: id, Rev: rev}
	if loc, ok := h.store.(remote.Locator); ok {
		resp.URL = remote.MoveURL(loc.ItemURL(itemid.Permanent(id)), deleted)
	}
	return c.JSON(http.StatusOK, resp)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Error  string `json:"error,omitempty"`
}

// Health reports whether the backend is reachable.
func (h *Handler) Health(c echo.Context) error {
	resp := HealthResponse{Status: "healthy", Uptime: time.Since(h.startAt).Round(time.Second).String()}

	if p, ok := h.store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			resp.Status, resp.Error = "unhealthy", err.Error()
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
