package service

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"noprime/redirector/internal/domain"
)

type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

type Extractor interface {
	ParseHTML(html, pageURL string) (*domain.ProductInfo, error)
}

type Classifier interface {
	Classify(product *domain.ProductInfo) *domain.Detection
}

// Result is the outcome for one inspected address.
type Result struct {
	URL       string            `json:"url"`
	Detection *domain.Detection `json:"detection,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Inspector runs product pages through detection without a tab: fetch,
// extract, classify.
type Inspector struct {
	fetcher    Fetcher
	extractor  Extractor
	classifier Classifier
	maxWorkers int
}

func NewInspector(fetcher Fetcher, ex Extractor, cl Classifier, maxWorkers int) *Inspector {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	return &Inspector{
		fetcher:    fetcher,
		extractor:  ex,
		classifier: cl,
		maxWorkers: maxWorkers,
	}
}

// Inspect classifies the page at pageURL. Pages without a product title
// return domain.ErrNotProductPage.
func (s *Inspector) Inspect(ctx context.Context, pageURL string) (*domain.Detection, error) {
	html, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}

	return s.InspectHTML(pageURL, html)
}

// InspectHTML classifies an already loaded page.
func (s *Inspector) InspectHTML(pageURL, html string) (*domain.Detection, error) {
	product, err := s.extractor.ParseHTML(html, pageURL)
	if err != nil {
		return nil, err
	}

	detection := s.classifier.Classify(product)
	if detection == nil {
		return nil, domain.ErrNotProductPage
	}
	return detection, nil
}

// InspectAll inspects urls with at most maxWorkers fetches in flight.
// Per-page failures are reported in the results, which keep the order of
// urls; only cancellation of ctx fails the batch.
func (s *Inspector) InspectAll(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)

	var done atomic.Int32
	log.Infof("🔎 Inspecting %d pages with %d workers", len(urls), s.maxWorkers)

	for i, pageURL := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			results[i].URL = pageURL
			detection, err := s.Inspect(gctx, pageURL)
			if err != nil {
				log.Warnf("⚠️ Inspection of %s failed: %v", pageURL, err)
				results[i].Error = err.Error()
			} else {
				results[i].Detection = detection
			}

			if n := done.Add(1); n%100 == 0 {
				log.Infof("Inspected %d of %d pages", n, len(urls))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("inspection cancelled: %w", err)
	}

	log.Infof("✅ Inspected %d pages", len(urls))
	return results, nil
}
