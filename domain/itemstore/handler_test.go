package itemstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/BobSilent/aggregator-cli/internal/config"
	"github.com/BobSilent/aggregator-cli/internal/server"
	"github.com/BobSilent/aggregator-cli/internal/testutil"
	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/auth"
	"github.com/BobSilent/aggregator-cli/pkg/batch"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
	"github.com/BobSilent/aggregator-cli/pkg/store/httpstore"
	"github.com/BobSilent/aggregator-cli/pkg/store/memstore"
)

const testAPIKey = "secret"

// newServer serves store through the same echo stack the binary uses.
func newServer(t *testing.T, store func(base string) remote.Store) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(nil)
	base := "http://" + srv.Listener.Addr().String()

	cfg := &config.Config{APIKey: testAPIKey, MaxBatchSize: 3}
	e := server.NewEcho(server.EchoParams{Config: cfg, Log: logger.Discard()})
	RegisterRoutes(e, NewHandler(store(base+httpstore.ItemsPath), cfg, logger.Discard()))
	srv.Config.Handler = e

	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server) *httpstore.Store {
	t.Helper()
	client, err := httpstore.New(httpstore.Config{
		ServerURL: srv.URL,
		Auth:      auth.NewAPIKeyProvider(testAPIKey),
		ChunkSize: 2,
	})
	require.NoError(t, err)
	return client
}

func memBackend(base string) remote.Store { return memstore.New(base) }

func TestStoreOverHTTP(t *testing.T) {
	suite.Run(t, &testutil.StoreSuite{
		NewStore: func() remote.Store {
			return newClient(t, newServer(t, memBackend))
		},
	})
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestBadRequests(t *testing.T) {
	srv := newServer(t, memBackend)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"non numeric id", http.MethodGet, "/api/items/abc", "", http.StatusBadRequest},
		{"negative id", http.MethodGet, "/api/items/-1", "", http.StatusBadRequest},
		{"bad rev", http.MethodGet, "/api/items/1?rev=0", "", http.StatusBadRequest},
		{"missing ids", http.MethodGet, "/api/items", "", http.StatusBadRequest},
		{"bad ids", http.MethodGet, "/api/items?ids=1,x", "", http.StatusBadRequest},
		{"too many ids", http.MethodGet, "/api/items?ids=1,2,3,4", "", http.StatusBadRequest},
		{"not a patch", http.MethodPost, "/api/items", `{"op":"add"}`, http.StatusBadRequest},
		{"unknown item", http.MethodPatch, "/api/items/7", `[]`, http.StatusNotFound},
		{"empty create", http.MethodPost, "/api/items", "", http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestClientErrorsMatchSentinels(t *testing.T) {
	srv := newServer(t, memBackend)
	client := newClient(t, srv)

	_, err := client.FetchByID(t.Context(), 42, remote.Latest)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)

	unauthorized, err := httpstore.New(httpstore.Config{ServerURL: srv.URL})
	require.NoError(t, err)
	_, err = unauthorized.FetchByID(t.Context(), 1, remote.Latest)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	require.NoError(t, client.Health(t.Context()), "health needs no key")
}

// plain hides every optional interface of the wrapped store.
type plain struct{ remote.Store }

func TestRecycleUnsupported(t *testing.T) {
	srv := newServer(t, func(base string) remote.Store { return plain{memstore.New(base)} })
	client := newClient(t, srv)

	created, err := client.Create(t.Context(), nil)
	require.NoError(t, err)
	_, err = client.Recycle(t.Context(), created.ID)
	assert.ErrorIs(t, err, apperror.ErrRejected)
}

type downStore struct {
	*memstore.Store
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	up := newServer(t, memBackend)
	resp := do(t, up, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newServer(t, func(base string) remote.Store { return downStore{memstore.New(base)} })
	resp = do(t, down, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = do(t, up, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSetsLocation(t *testing.T) {
	srv := newServer(t, memBackend)
	resp := do(t, srv, http.MethodPost, "/api/items", `[{"op":"add","path":"/fields/Title","value":"x"}]`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, srv.URL+"/api/items/1", resp.Header.Get(echo.HeaderLocation))
}

// A batch saved through the HTTP client behaves like one saved against the
// store directly.
func TestBatchOverHTTP(t *testing.T) {
	srv := newServer(t, memBackend)
	client := newClient(t, srv)

	b := batch.New(client, batch.Options{})
	parent, err := b.New(map[string]field.Value{"Title": field.String("parent")})
	require.NoError(t, err)
	child, err := b.New(map[string]field.Value{"Title": field.String("child")})
	require.NoError(t, err)
	require.NoError(t, parent.Relations().AddChild(child))
	require.NoError(t, child.MarkForDelete())

	res, err := b.Save(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count(batch.OutcomeCreated))
	assert.True(t, child.IsDeleted())
	assert.Equal(t, srv.URL+"/api/items/recyclebin/2", child.URL())

	other := batch.New(client, batch.Options{})
	loaded, err := other.GetMany(t.Context(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	children, err := other.Children(t.Context(), loaded[0])
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.True(t, children[0].IsDeleted())
}
