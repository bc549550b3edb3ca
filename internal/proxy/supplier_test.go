package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_RoundRobin(t *testing.T) {
	s := NewProxySupplier(context.Background(), []string{"http://a:1", "http://b:2"}, "")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "http://a:1", s.Get())
	assert.Equal(t, "http://b:2", s.Get())
	assert.Equal(t, "http://a:1", s.Get())
}

func TestGet_Empty(t *testing.T) {
	s := NewProxySupplier(context.Background(), nil, "http://example.test")

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", s.Get())
}

func TestNewProxySupplier_DropsBrokenProxies(t *testing.T) {
	// Plain HTTP requests through a proxy arrive at it in absolute form, so
	// any handler answering 200 acts as a working proxy.
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer working.Close()

	refusing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer refusing.Close()

	s := NewProxySupplier(context.Background(),
		[]string{refusing.URL, working.URL},
		"http://www.amazon.com/robots.txt")

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, working.URL, s.Get())
}
