package host

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"noprime/redirector/internal/bus"
	"noprime/redirector/internal/controller"
	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/domain/message"
	"noprime/redirector/internal/page"
)

// Coordinator receives the browser's tab and toolbar events.
type Coordinator interface {
	Toggle(ctx context.Context) (bool, error)
	TabRemoved(ctx context.Context, tabID int) error
	TabUpdated(ctx context.Context, tabID int, newURL string) error
}

// Fetcher loads a page when a tab is opened without a body.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

type Options struct {
	Controller     controller.Options
	RequestTimeout time.Duration // Bound on bus requests made for callers
}

// TabInfo is a snapshot of one tab.
type TabInfo struct {
	ID         int                 `json:"id"`
	URL        string              `json:"url"`
	Title      string              `json:"title"`
	Badge      domain.Badge        `json:"badge"`
	Controller controller.Snapshot `json:"controller"`
	BannerHTML string              `json:"bannerHtml,omitempty"`
}

// ToolbarInfo is the browser action as last set by the coordinator.
type ToolbarInfo struct {
	Icon  domain.IconSet `json:"icon"`
	Title string         `json:"title"`
}

type tab struct {
	id     int
	page   *page.HTMLPage
	ctl    *controller.Controller
	cancel context.CancelFunc
	done   chan struct{}
}

// Browser simulates the host platform: it owns tabs, runs one page
// controller per tab, and shows the toolbar the coordinator drives.
type Browser struct {
	bus        bus.Bus
	extractor  controller.Extractor
	classifier controller.Classifier
	settings   controller.Settings
	fetcher    Fetcher
	opts       Options

	base   context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	coordinator Coordinator
	tabs        map[int]*tab
	nextID      int
	icon        domain.IconSet
	title       string
	badges      map[int]domain.Badge
}

func NewBrowser(
	b bus.Bus,
	ex controller.Extractor,
	cl controller.Classifier,
	settings controller.Settings,
	fetcher Fetcher,
	opts Options,
) *Browser {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}

	base, cancel := context.WithCancel(context.Background())
	return &Browser{
		bus:        b,
		extractor:  ex,
		classifier: cl,
		settings:   settings,
		fetcher:    fetcher,
		opts:       opts,
		base:       base,
		cancel:     cancel,
		tabs:       make(map[int]*tab),
		badges:     make(map[int]domain.Badge),
	}
}

// Attach sets the coordinator that receives tab and toolbar events.
func (b *Browser) Attach(c Coordinator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coordinator = c
}

func (b *Browser) coord() Coordinator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.coordinator
}

// OpenTab opens pageURL in a new tab. An empty body is fetched.
func (b *Browser) OpenTab(ctx context.Context, pageURL, body string) (TabInfo, error) {
	p, err := b.loadPage(ctx, pageURL, body)
	if err != nil {
		return TabInfo{}, err
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	log.Infof("🗂️ Opened tab %d at %s", id, pageURL)
	return b.startTab(ctx, id, p)
}

// Navigate performs a full load of pageURL in tab id, replacing its
// controller.
func (b *Browser) Navigate(ctx context.Context, id int, pageURL, body string) (TabInfo, error) {
	t, err := b.tab(id)
	if err != nil {
		return TabInfo{}, err
	}

	p, err := b.loadPage(ctx, pageURL, body)
	if err != nil {
		return TabInfo{}, err
	}

	b.stopTab(t)
	return b.startTab(ctx, id, p)
}

// SoftNavigate changes the tab's address without reloading it.
func (b *Browser) SoftNavigate(ctx context.Context, id int, pageURL, body string) (TabInfo, error) {
	t, err := b.tab(id)
	if err != nil {
		return TabInfo{}, err
	}

	if err := t.page.SoftNavigate(pageURL, body); err != nil {
		return TabInfo{}, err
	}

	if c := b.coord(); c != nil {
		if err := c.TabUpdated(ctx, id, pageURL); err != nil {
			log.Warnf("⚠️ Tab %d update not recorded: %v", id, err)
		}
	}

	return b.info(t), nil
}

// CloseTab stops the tab's controller and tells the coordinator.
func (b *Browser) CloseTab(ctx context.Context, id int) error {
	t, err := b.tab(id)
	if err != nil {
		return err
	}

	b.stopTab(t)

	b.mu.Lock()
	delete(b.tabs, id)
	delete(b.badges, id)
	b.mu.Unlock()

	if c := b.coord(); c != nil {
		if err := c.TabRemoved(ctx, id); err != nil {
			return fmt.Errorf("failed to report closed tab %d: %w", id, err)
		}
	}

	log.Infof("Closed tab %d", id)
	return nil
}

// Dismiss closes the banner in tab id.
func (b *Browser) Dismiss(ctx context.Context, id int) (TabInfo, error) {
	t, err := b.tab(id)
	if err != nil {
		return TabInfo{}, err
	}

	if err := t.ctl.Dismiss(ctx); err != nil {
		return TabInfo{}, fmt.Errorf("failed to dismiss banner in tab %d: %w", id, err)
	}
	return b.info(t), nil
}

// ClickAction is the user clicking the toolbar icon.
func (b *Browser) ClickAction(ctx context.Context) (bool, error) {
	c := b.coord()
	if c == nil {
		return false, errors.New("no coordinator attached")
	}
	return c.Toggle(ctx)
}

// CachedProduct asks the coordinator for its cached detection of tab id.
func (b *Browser) CachedProduct(ctx context.Context, id int) (*domain.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.RequestTimeout)
	defer cancel()

	reply, err := bus.Ask(ctx, b.bus, bus.CoordinatorAddress, 0, &message.GetProduct{TabID: &id})
	if err != nil {
		return nil, fmt.Errorf("failed to get product for tab %d: %w", id, err)
	}
	return message.DecodeDetection(reply)
}

// QueryProduct asks tab id's controller to detect afresh.
func (b *Browser) QueryProduct(ctx context.Context, id int) (*domain.Detection, error) {
	if _, err := b.tab(id); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.RequestTimeout)
	defer cancel()

	reply, err := bus.Ask(ctx, b.bus, bus.TabAddress(id), 0, &message.QueryProduct{})
	if err != nil {
		return nil, fmt.Errorf("failed to query tab %d: %w", id, err)
	}
	return message.DecodeDetection(reply)
}

func (b *Browser) Tab(id int) (TabInfo, error) {
	t, err := b.tab(id)
	if err != nil {
		return TabInfo{}, err
	}
	return b.info(t), nil
}

// Tabs lists open tabs by id.
func (b *Browser) Tabs() []TabInfo {
	b.mu.RLock()
	tabs := lo.Values(b.tabs)
	b.mu.RUnlock()

	slices.SortFunc(tabs, func(x, y *tab) int { return x.id - y.id })
	return lo.Map(tabs, func(t *tab, _ int) TabInfo { return b.info(t) })
}

func (b *Browser) Toolbar() ToolbarInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ToolbarInfo{Icon: b.icon, Title: b.title}
}

// SetIcon, SetTitle and SetBadge make the browser the coordinator's toolbar.
func (b *Browser) SetIcon(icons domain.IconSet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.icon = icons
}

func (b *Browser) SetTitle(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.title = title
}

func (b *Browser) SetBadge(tabID int, badge domain.Badge) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if badge.IsEmpty() {
		delete(b.badges, tabID)
		return
	}
	b.badges[tabID] = badge
}

// QueryTabs returns the ids of tabs whose address matches a pattern.
func (b *Browser) QueryTabs(patterns []string) []int {
	matchers := lo.FilterMap(patterns, func(p string, _ int) (*regexp.Regexp, bool) {
		re, err := compilePattern(p)
		if err != nil {
			log.Warnf("⚠️ Ignoring tab pattern %q: %v", p, err)
			return nil, false
		}
		return re, true
	})

	b.mu.RLock()
	tabs := lo.Values(b.tabs)
	b.mu.RUnlock()

	ids := lo.FilterMap(tabs, func(t *tab, _ int) (int, bool) {
		u := t.page.URL()
		return t.id, lo.SomeBy(matchers, func(re *regexp.Regexp) bool { return re.MatchString(u) })
	})
	slices.Sort(ids)
	return ids
}

// Close stops every tab's controller.
func (b *Browser) Close() {
	b.mu.Lock()
	tabs := lo.Values(b.tabs)
	b.tabs = make(map[int]*tab)
	b.mu.Unlock()

	b.cancel()
	for _, t := range tabs {
		<-t.done
	}
}

func (b *Browser) loadPage(ctx context.Context, pageURL, body string) (*page.HTMLPage, error) {
	if body == "" {
		if b.fetcher == nil {
			return nil, fmt.Errorf("no page body for %s and no fetcher", pageURL)
		}
		fetched, err := b.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
		}
		body = fetched
	}

	return page.New(pageURL, body)
}

// startTab runs a controller for p in tab id and fires the page's load.
func (b *Browser) startTab(ctx context.Context, id int, p *page.HTMLPage) (TabInfo, error) {
	ctl := controller.New(id, p, b.extractor, b.classifier, b.settings, b.bus, b.opts.Controller)

	tabCtx, cancel := context.WithCancel(b.base)
	t := &tab{id: id, page: p, ctl: ctl, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		if err := ctl.Run(tabCtx); err != nil {
			log.Errorf("❌ Tab %d controller failed: %v", id, err)
		}
	}()

	b.mu.Lock()
	b.tabs[id] = t
	b.mu.Unlock()

	if c := b.coord(); c != nil {
		if err := c.TabUpdated(ctx, id, p.URL()); err != nil {
			log.Warnf("⚠️ Tab %d update not recorded: %v", id, err)
		}
	}

	if err := ctl.Load(ctx); err != nil {
		return TabInfo{}, fmt.Errorf("failed to load tab %d: %w", id, err)
	}

	return b.info(t), nil
}

func (b *Browser) stopTab(t *tab) {
	t.cancel()
	<-t.done
}

func (b *Browser) tab(id int) (*tab, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.tabs[id]
	if !ok {
		return nil, fmt.Errorf("tab %d: %w", id, domain.ErrTabNotFound)
	}
	return t, nil
}

func (b *Browser) info(t *tab) TabInfo {
	b.mu.RLock()
	badge := b.badges[t.id]
	b.mu.RUnlock()

	return TabInfo{
		ID:         t.id,
		URL:        t.page.URL(),
		Title:      t.page.Title(),
		Badge:      badge,
		Controller: t.ctl.Snapshot(),
		BannerHTML: t.page.BannerHTML(),
	}
}

// compilePattern turns a match pattern such as https://www.amazon.com/*
// into an anchored expression where * matches any run of characters.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
