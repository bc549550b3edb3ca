package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"noprime/redirector/internal/config"
	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/proxy"
)

// ErrRobotCheck is returned when the retailer answers with a captcha page
// through every available route.
var ErrRobotCheck = errors.New("blocked by robot check")

// robotCheckMarkers appear on the retailer's captcha interstitial.
var robotCheckMarkers = []string{
	"/errors/validateCaptcha",
	"<title>Robot Check</title>",
	"Enter the characters you see below",
	"api-services-support@amazon.com",
}

// PageFetcher downloads retailer product pages.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

type pageFetcher struct {
	rl            ratelimit.Limiter
	config        config.FetcherConfig
	httpClient    *resty.Client
	proxySupplier proxy.ProxySupplier

	// Circuit breaker over consecutive blocked fetches
	breakerMutex sync.Mutex
	blocked      int
	openUntil    time.Time
	now          func() time.Time
}

func NewPageFetcher(cfg config.FetcherConfig, proxySupplier proxy.ProxySupplier) PageFetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5")

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Using initial proxy: %s", proxyURL)
		}
	}

	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &pageFetcher{
		rl:            ratelimit.New(rps),
		config:        cfg,
		httpClient:    client,
		proxySupplier: proxySupplier,
		now:           time.Now,
	}
}

// Fetch returns the page's HTML. Captcha pages rotate through the proxy
// pool; when every route is blocked the breaker counts a failure and opens
// after FailureThreshold of them in a row.
func (f *pageFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if remaining := f.breakerRemaining(); remaining > 0 {
		return "", fmt.Errorf("%w: retry in %v", domain.ErrCircuitOpen, remaining.Round(time.Second))
	}

	html, blocked, err := f.get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	if blocked {
		log.Warnf("🚫 Robot check for URL: %s", pageURL)
		html, blocked, err = f.rotate(ctx, pageURL)
		if err != nil {
			return "", err
		}
	}

	if blocked {
		f.recordBlocked()
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, ErrRobotCheck)
	}

	f.recordSuccess()
	return html, nil
}

// rotate retries pageURL once through each proxy in the pool.
func (f *pageFetcher) rotate(ctx context.Context, pageURL string) (string, bool, error) {
	if f.proxySupplier == nil {
		return "", true, nil
	}

	for range f.proxySupplier.Len() {
		newProxy := f.proxySupplier.Get()
		if newProxy == "" {
			break
		}

		log.Infof("🔄 Switching to proxy: %s", newProxy)
		f.httpClient.SetProxy(newProxy)

		html, blocked, err := f.get(ctx, pageURL)
		if err != nil {
			log.Warnf("⚠️ Proxy %s failed: %v", newProxy, err)
			continue
		}
		if !blocked {
			log.Infof("✅ Fetched through proxy %s", newProxy)
			return html, false, nil
		}
	}

	return "", true, nil
}

func (f *pageFetcher) get(ctx context.Context, pageURL string) (string, bool, error) {
	f.rl.Take()

	resp, err := f.httpClient.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return "", false, fmt.Errorf("failed to fetch URL: %w", err)
	}

	html := resp.String()
	if isRobotCheck(html) {
		return "", true, nil
	}

	if resp.IsError() {
		return "", false, fmt.Errorf("HTTP error: %d %s", resp.StatusCode(), resp.Status())
	}

	return html, false, nil
}

func isRobotCheck(html string) bool {
	for _, marker := range robotCheckMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

func (f *pageFetcher) breakerRemaining() time.Duration {
	f.breakerMutex.Lock()
	defer f.breakerMutex.Unlock()

	if f.openUntil.IsZero() {
		return 0
	}

	remaining := f.openUntil.Sub(f.now())
	if remaining <= 0 {
		f.openUntil = time.Time{}
		f.blocked = 0
		log.Infof("✅ Circuit breaker closed - requests are allowed again")
		return 0
	}
	return remaining
}

func (f *pageFetcher) recordBlocked() {
	f.breakerMutex.Lock()
	defer f.breakerMutex.Unlock()

	f.blocked++
	if f.config.FailureThreshold <= 0 || f.blocked < f.config.FailureThreshold {
		return
	}

	f.openUntil = f.now().Add(f.config.Cooldown)
	log.Warnf("🚫 Circuit breaker opened after %d blocked fetches, requests disabled until %s",
		f.blocked, f.openUntil.Format("15:04:05"))
}

func (f *pageFetcher) recordSuccess() {
	f.breakerMutex.Lock()
	defer f.breakerMutex.Unlock()
	f.blocked = 0
}
