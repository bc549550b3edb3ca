package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noprime/redirector/internal/config"
	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/proxy"
)

const (
	productPage = `<html><body><span id="productTitle">Headphones</span></body></html>`
	robotPage   = `<html><head><title>Robot Check</title></head><body>
		<form action="/errors/validateCaptcha">Enter the characters you see below</form></body></html>`
)

func testConfig() config.FetcherConfig {
	return config.FetcherConfig{
		Timeout:              2 * time.Second,
		MaxRequestsPerSecond: 1000,
		FailureThreshold:     2,
		Cooldown:             time.Minute,
		UserAgent:            "noprime-test",
	}
}

func TestFetch(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	f := NewPageFetcher(testConfig(), nil)

	html, err := f.Fetch(context.Background(), srv.URL+"/dp/B09XS7JWHH")
	require.NoError(t, err)
	assert.Equal(t, productPage, html)
	assert.Equal(t, "noprime-test", agent.Load())
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewPageFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRobotCheck)
}

func TestFetch_RobotCheckOpensBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(robotPage))
	}))
	defer srv.Close()

	f := NewPageFetcher(testConfig(), nil).(*pageFetcher)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	for range 2 {
		_, err := f.Fetch(context.Background(), srv.URL)
		assert.ErrorIs(t, err, ErrRobotCheck)
	}

	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())

	now = now.Add(2 * time.Minute)
	_, err = f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRobotCheck)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_SuccessResetsBreaker(t *testing.T) {
	var blocked atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if blocked.Load() {
			_, _ = w.Write([]byte(robotPage))
			return
		}
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	f := NewPageFetcher(testConfig(), nil)

	blocked.Store(true)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRobotCheck)

	blocked.Store(false)
	_, err = f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	blocked.Store(true)
	_, err = f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRobotCheck, "one block after a success must not open the breaker")
}

func TestFetch_RotatesProxyOnRobotCheck(t *testing.T) {
	// Plain HTTP requests reach the proxy in absolute form, so the handler
	// stands in for the retailer as seen through that proxy.
	blockedProxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(robotPage))
	}))
	defer blockedProxy.Close()

	goodProxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shop.test", r.URL.Host)
		_, _ = w.Write([]byte(productPage))
	}))
	defer goodProxy.Close()

	supplier := proxy.NewProxySupplier(context.Background(), []string{blockedProxy.URL, goodProxy.URL}, "")
	f := NewPageFetcher(testConfig(), supplier)

	html, err := f.Fetch(context.Background(), "http://shop.test/dp/B09XS7JWHH")
	require.NoError(t, err)
	assert.Equal(t, productPage, html)
}

func TestIsRobotCheck(t *testing.T) {
	assert.True(t, isRobotCheck(robotPage))
	assert.False(t, isRobotCheck(productPage))
}
