package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noprime/redirector/internal/bus"
	"noprime/redirector/internal/catalog"
	"noprime/redirector/internal/config"
	"noprime/redirector/internal/controller"
	"noprime/redirector/internal/coordinator"
	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/extractor"
	"noprime/redirector/internal/host"
	"noprime/redirector/internal/resolver"
	"noprime/redirector/internal/service"
	"noprime/redirector/internal/state"
)

const (
	sonyURL  = "https://www.amazon.com/Sony-Headphones/dp/B09XS7JWHH"
	sonyHTML = `<html><head><title>Sony</title></head><body>
		<span id="productTitle">WH-1000XM5 Headphones</span>
		<a id="bylineInfo">Visit the Sony Store</a></body></html>`

	legoURL  = "https://www.amazon.com/dp/B0BDHWDR12"
	legoHTML = `<html><body><span id="productTitle">Classic Bricks</span><a id="bylineInfo">Brand: LEGO</a></body></html>`
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, pageURL string) (string, error) {
	if body, ok := f[pageURL]; ok {
		return body, nil
	}
	return "", domain.ErrCircuitOpen
}

func setupTestRouter(t *testing.T, serverCfg config.ServerConfig) *gin.Engine {
	t.Helper()

	c, err := catalog.Default()
	require.NoError(t, err)
	res := resolver.New(c, resolver.Options{})
	ex := extractor.New()
	fetcher := fakeFetcher{legoURL: legoHTML}

	b := bus.NewMemoryBus()
	settings := state.NewMemorySettingsStore()
	browser := host.NewBrowser(b, ex, res, settings, fetcher, host.Options{})
	coord := coordinator.New(settings, state.NewMemoryTabStore(), browser, browser, b, config.DefaultTabPatterns)
	browser.Attach(coord)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()
	t.Cleanup(func() {
		browser.Close()
		cancel()
		require.NoError(t, <-done)
		_ = b.Close()
	})
	<-coord.Ready()

	inspector := service.NewInspector(fetcher, ex, res, 2)
	handler := NewHandler(browser, coord, res, inspector, time.Second)
	return SetupRouter(serverCfg, handler)
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(t, config.ServerConfig{Mode: gin.TestMode})

	w := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, w)["status"])
}

func TestStateAndToggle(t *testing.T) {
	router := setupTestRouter(t, config.ServerConfig{Mode: gin.TestMode})

	w := do(t, router, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["enabled"])

	w = do(t, router, http.MethodPost, "/api/v1/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["enabled"])

	w = do(t, router, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[struct {
		Enabled bool             `json:"enabled"`
		Toolbar host.ToolbarInfo `json:"toolbar"`
	}](t, w)
	assert.False(t, st.Enabled)
	assert.Equal(t, domain.TitleDisabled, st.Toolbar.Title)
}

func TestResolve(t *testing.T) {
	router := setupTestRouter(t, config.ServerConfig{Mode: gin.TestMode})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantType   domain.MatchType
	}{
		{
			name:       "known brand",
			body:       resolveRequest{Brand: "Sony", Title: "Headphones"},
			wantStatus: http.StatusOK,
			wantType:   domain.MatchTypeBrand,
		},
		{
			name:       "suspect brand",
			body:       resolveRequest{Brand: "BSTOEM", Title: "Charger"},
			wantStatus: http.StatusOK,
			wantType:   domain.MatchTypeSuspectBrand,
		},
		{
			name:       "book",
			body:       resolveRequest{Title: "Gödel, Escher, Bach", IsBook: true, ISBN: "9780465026562"},
			wantStatus: http.StatusOK,
			wantType:   domain.MatchTypeBook,
		},
		{
			name:       "missing title",
			body:       map[string]string{"brand": "Sony"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/resolve", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			resp := decode[detectionResponse](t, w)
			require.NotNil(t, resp.Detection)
			assert.Equal(t, tt.wantType, resp.Detection.MatchType)
		})
	}
}

func TestExtract(t *testing.T) {
	router := setupTestRouter(t, config.ServerConfig{Mode: gin.TestMode})

	w := do(t, router, http.MethodPost, "/api/v1/extract", pageRequest{URL: sonyURL, HTML: sonyHTML})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[detectionResponse](t, w)
	require.NotNil(t, resp.Detection)
	assert.Equal(t, "Sony", resp.Detection.Brand)
	assert.Equal(t, "sony", resp.Detection.StoreBrand)

	// No body: fetched.
	w = do(t, router, http.MethodPost, "/api/v1/extract", pageRequest{URL: legoURL})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lego", decode[detectionResponse](t, w).Detection.StoreBrand)

	w = do(t, router, http.MethodPost, "/api/v1/extract", pageRequest{URL: sonyURL, HTML: "<html><body>Deals</body></html>"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/extract", pageRequest{URL: sonyURL})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTabLifecycle(t *testing.T) {
	router := setupTestRouter(t, config.ServerConfig{Mode: gin.TestMode})

	w := do(t, router, http.MethodPost, "/api/v1/tabs", pageRequest{URL: sonyURL, HTML: sonyHTML})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	opened := decode[host.TabInfo](t, w)
	assert.Equal(t, 1, opened.ID)
	assert.Equal(t, controller.StateInjected, opened.Controller.State)
	require.NotNil(t, opened.Controller.Banner)
	assert.Equal(t, domain.MatchTypeBrand, opened.Controller.Banner.Variant)

	w = do(t, router, http.MethodGet, "/api/v1/tabs/1/product", nil)
	require.Equal(t, http.StatusOK, w.Code)
	product := decode[detectionResponse](t, w)
	require.NotNil(t, product.Detection)
	assert.Equal(t, "sony", product.Detection.StoreBrand)

	w = do(t, router, http.MethodGet, "/api/v1/tabs/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Badge{Text: "✓", Color: "#1a6b3c"}, decode[host.TabInfo](t, w).Badge)

	w = do(t, router, http.MethodPost, "/api/v1/tabs/1/query", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sony", decode[detectionResponse](t, w).Detection.StoreBrand)

	w = do(t, router, http.MethodPost, "/api/v1/tabs/1/navigate", navigateRequest{URL: legoURL})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	navigated := decode[host.TabInfo](t, w)
	assert.Equal(t, legoURL, navigated.URL)
	require.NotNil(t, navigated.Controller.Detection)
	assert.Equal(t, "lego", navigated.Controller.Detection.StoreBrand)

	w = do(t, router, http.MethodPost, "/api/v1/tabs/1/navigate", navigateRequest{URL: "https://www.amazon.com/gp/cart/view.html", Soft: true})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, "/api/v1/tabs/1/product", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[detectionResponse](t, w).Detection)

	w = do(t, router, http.MethodPost, "/api/v1/tabs/1/dismiss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, controller.StateUninjected, decode[host.TabInfo](t, w).Controller.State)

	w = do(t, router, http.MethodGet, "/api/v1/tabs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Tabs []host.TabInfo `json:"tabs"`
	}](t, w).Tabs, 1)

	w = do(t, router, http.MethodDelete, "/api/v1/tabs/1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/tabs/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTabErrors(t *testing.T) {
	router := setupTestRouter(t, config.ServerConfig{Mode: gin.TestMode})

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{"bad id", http.MethodGet, "/api/v1/tabs/abc", nil, http.StatusBadRequest},
		{"zero id", http.MethodGet, "/api/v1/tabs/0", nil, http.StatusBadRequest},
		{"unknown tab", http.MethodGet, "/api/v1/tabs/7", nil, http.StatusNotFound},
		{"close unknown", http.MethodDelete, "/api/v1/tabs/7", nil, http.StatusNotFound},
		{"query unknown", http.MethodPost, "/api/v1/tabs/7/query", nil, http.StatusNotFound},
		{"dismiss unknown", http.MethodPost, "/api/v1/tabs/7/dismiss", nil, http.StatusNotFound},
		{"navigate without url", http.MethodPost, "/api/v1/tabs/7/navigate", map[string]string{}, http.StatusBadRequest},
		{"open without url", http.MethodPost, "/api/v1/tabs", map[string]string{"html": "<html></html>"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := setupTestRouter(t, config.ServerConfig{Mode: gin.TestMode, RateLimit: 0.001, RateBurst: 2})

	for range 2 {
		assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodGet, "/health", nil).Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrTabNotFound, http.StatusNotFound},
		{domain.ErrNotProductPage, http.StatusUnprocessableEntity},
		{domain.ErrCircuitOpen, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorStatus(tt.err))
		})
	}
}
