package page

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// HTMLPage is a loaded document at an address. It is safe for concurrent
// use; all document access goes through its lock.
type HTMLPage struct {
	mu       sync.Mutex
	url      string
	doc      *goquery.Document
	watchers map[chan string]struct{}
}

// New parses body as the document found at pageURL.
func New(pageURL, body string) (*HTMLPage, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}

	return &HTMLPage{
		url:      pageURL,
		doc:      doc,
		watchers: make(map[chan string]struct{}),
	}, nil
}

func parse(body string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

func (p *HTMLPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Inspect runs fn with the document locked. fn must not keep doc.
func (p *HTMLPage) Inspect(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// Title is the document's <title>.
func (p *HTMLPage) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

// RenderBanner replaces any banner with b at the top of the body.
func (p *HTMLPage) RenderBanner(b *Banner) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc.Find("#" + BannerID).Remove()
	p.doc.Find("body").First().PrependNodes(b.node())
}

// RemoveBanner reports whether there was a banner to remove.
func (p *HTMLPage) RemoveBanner() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	banner := p.doc.Find("#" + BannerID)
	if banner.Length() == 0 {
		return false
	}
	banner.Remove()
	return true
}

func (p *HTMLPage) HasBanner() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find("#"+BannerID).Length() > 0
}

// BannerHTML is the rendered banner markup, empty when none is shown.
func (p *HTMLPage) BannerHTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	banner := p.doc.Find("#" + BannerID)
	if banner.Length() == 0 {
		return ""
	}
	out, err := goquery.OuterHtml(banner.First())
	if err != nil {
		return ""
	}
	return out
}

// HTML serialises the whole document.
func (p *HTMLPage) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return out, nil
}

// SoftNavigate changes the address without a reload, the way a site's
// history navigation does. When body is non-empty the document is replaced
// too. Watchers are told when the path changed.
func (p *HTMLPage) SoftNavigate(newURL, body string) error {
	var doc *goquery.Document
	if body != "" {
		parsed, err := parse(body)
		if err != nil {
			return err
		}
		doc = parsed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	oldPath := pathOf(p.url)
	p.url = newURL
	if doc != nil {
		p.doc = doc
	}

	if pathOf(newURL) == oldPath {
		return nil
	}

	for ch := range p.watchers {
		// Keep only the latest address.
		select {
		case <-ch:
		default:
		}
		ch <- newURL
	}
	return nil
}

// Watch returns a channel that receives the new address after each path
// change. Pending changes coalesce to the latest. The channel closes when
// ctx ends.
func (p *HTMLPage) Watch(ctx context.Context) <-chan string {
	ch := make(chan string, 1)

	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.watchers, ch)
		close(ch)
		p.mu.Unlock()
	}()

	return ch
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
