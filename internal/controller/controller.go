package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"noprime/redirector/internal/bus"
	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/domain/message"
	"noprime/redirector/internal/extractor"
	"noprime/redirector/internal/page"
)

// ErrStopped is returned by commands sent to a controller that is not running.
var ErrStopped = errors.New("controller is not running")

type State string

const (
	StateUninjected State = "uninjected"
	StateInjected   State = "injected"
)

// Page is the document a controller renders into.
type Page interface {
	URL() string
	Inspect(fn func(doc *goquery.Document))
	RenderBanner(b *page.Banner)
	RemoveBanner() bool
	HasBanner() bool
	Watch(ctx context.Context) <-chan string
}

type Extractor interface {
	ExtractProductInfo(doc *goquery.Document, pageURL string) *domain.ProductInfo
}

type Classifier interface {
	Classify(product *domain.ProductInfo) *domain.Detection
}

// Settings reads the enabled flag.
type Settings interface {
	Enabled(ctx context.Context) (bool, error)
}

type Options struct {
	SearchEngine string // Label for web search buttons
}

// Snapshot is the controller's externally visible state.
type Snapshot struct {
	State     State             `json:"state"`
	MatchType domain.MatchType  `json:"matchType,omitempty"`
	Banner    *page.Banner      `json:"banner,omitempty"`
	Detection *domain.Detection `json:"detection,omitempty"`
}

type command struct {
	name string
	run  func(ctx context.Context)
	done chan struct{}
}

// Controller drives the banner of one page. Everything it does happens on
// the goroutine running Run: bus messages, address changes and commands
// are handled one at a time.
type Controller struct {
	tabID      int
	page       Page
	extractor  Extractor
	classifier Classifier
	settings   Settings
	bus        bus.Bus
	opts       Options

	commands chan command
	stopped  chan struct{}

	// initialized guards against a second load of the same page.
	initialized bool
	// lastPath is the address path the controller last acted on.
	lastPath string

	mu       sync.RWMutex
	snapshot Snapshot
}

func New(tabID int, p Page, ex Extractor, cl Classifier, settings Settings, b bus.Bus, opts Options) *Controller {
	if opts.SearchEngine == "" {
		opts.SearchEngine = "DuckDuckGo"
	}

	return &Controller{
		tabID:      tabID,
		page:       p,
		extractor:  ex,
		classifier: cl,
		settings:   settings,
		bus:        b,
		opts:       opts,
		commands:   make(chan command),
		stopped:    make(chan struct{}),
		snapshot:   Snapshot{State: StateUninjected},
	}
}

func (c *Controller) TabID() int {
	return c.tabID
}

// Run subscribes to the tab's address and processes events until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	addr := bus.TabAddress(c.tabID)
	deliveries, err := c.bus.Subscribe(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to subscribe controller to %s: %w", addr, err)
	}
	defer func() {
		if err := c.bus.Unsubscribe(addr); err != nil {
			log.Warnf("⚠️ Failed to unsubscribe %s: %v", addr, err)
		}
	}()

	c.lastPath = pathOf(c.page.URL())
	changes := c.page.Watch(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)

		case u, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.addressChanged(ctx, u)

		case cmd := <-c.commands:
			log.Debugf("Tab %d: %s", c.tabID, cmd.name)
			cmd.run(ctx)
			close(cmd.done)
		}
	}
}

func (c *Controller) do(ctx context.Context, name string, fn func(ctx context.Context)) error {
	cmd := command{name: name, run: fn, done: make(chan struct{})}

	select {
	case c.commands <- cmd:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load is the page's load event. A second Load of the same page is ignored.
func (c *Controller) Load(ctx context.Context) error {
	return c.do(ctx, "load", c.initialize)
}

// Dismiss is the user closing the banner. It does not consult the
// enabled flag.
func (c *Controller) Dismiss(ctx context.Context) error {
	return c.do(ctx, "dismiss", func(context.Context) {
		c.page.RemoveBanner()
		c.setUninjected()
	})
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Controller) initialize(ctx context.Context) {
	if c.initialized {
		log.Debugf("Tab %d already initialized", c.tabID)
		return
	}
	c.initialized = true

	if !c.enabled(ctx) {
		return
	}

	d := c.detect()
	if d == nil {
		return
	}

	banner := BuildBanner(d, c.opts.SearchEngine)
	c.page.RenderBanner(banner)
	c.setInjected(d, banner)
	c.report(ctx, d)

	log.Infof("🏷️ Tab %d: %s banner for %q", c.tabID, d.MatchType, d.Title)
}

// reinitialize clears the guard and loads again.
func (c *Controller) reinitialize(ctx context.Context) {
	c.initialized = false
	c.initialize(ctx)
}

// enabled treats an unreadable flag as the default.
func (c *Controller) enabled(ctx context.Context) bool {
	enabled, err := c.settings.Enabled(ctx)
	if err != nil {
		log.Warnf("⚠️ Tab %d: failed to read enabled flag, assuming enabled: %v", c.tabID, err)
		return true
	}
	return enabled
}

// detect runs extraction and resolution on the current document. It
// returns nil for pages without a product title.
func (c *Controller) detect() *domain.Detection {
	pageURL := c.page.URL()

	var product *domain.ProductInfo
	c.page.Inspect(func(doc *goquery.Document) {
		product = c.extractor.ExtractProductInfo(doc, pageURL)
	})

	return c.classifier.Classify(product)
}

func (c *Controller) report(ctx context.Context, d *domain.Detection) {
	err := bus.Post(ctx, c.bus, bus.CoordinatorAddress, c.tabID, &message.ProductDetected{Payload: d})
	if err != nil {
		log.Warnf("⚠️ Tab %d: failed to report detection: %v", c.tabID, err)
	}
}

func (c *Controller) handle(ctx context.Context, d *bus.Delivery) {
	switch d.Envelope.Type {
	case message.TypeEnabledChanged:
		msg, err := message.Decode[message.EnabledChanged](d.Envelope)
		if err != nil {
			log.Warnf("⚠️ Tab %d: malformed %s: %v", c.tabID, d.Envelope.Type, err)
			return
		}
		c.enabledChanged(ctx, msg.Enabled)

	case message.TypeQueryProduct:
		det := c.detect()
		if det != nil {
			c.report(ctx, det)
		}
		if err := d.Reply(ctx, &message.Reply{Detection: det}); err != nil {
			log.Warnf("⚠️ Tab %d: %v", c.tabID, err)
		}

	default:
		log.Debugf("Tab %d ignoring %s", c.tabID, d.Envelope.Type)
	}
}

func (c *Controller) enabledChanged(ctx context.Context, enabled bool) {
	if !enabled {
		c.page.RemoveBanner()
		c.setUninjected()
		return
	}

	if !c.page.HasBanner() {
		c.reinitialize(ctx)
	}
}

// addressChanged handles soft navigation. Only a new path that is a
// product address reloads.
func (c *Controller) addressChanged(ctx context.Context, newURL string) {
	newPath := pathOf(newURL)
	if newPath == c.lastPath {
		return
	}
	c.lastPath = newPath

	if !extractor.IsProductURL(newURL) {
		log.Debugf("Tab %d navigated to non-product %s", c.tabID, newURL)
		return
	}

	c.page.RemoveBanner()
	c.setUninjected()
	c.reinitialize(ctx)
}

func (c *Controller) setInjected(d *domain.Detection, banner *page.Banner) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = Snapshot{
		State:     StateInjected,
		MatchType: d.MatchType,
		Banner:    banner,
		Detection: d,
	}
}

func (c *Controller) setUninjected() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = Snapshot{State: StateUninjected}
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
