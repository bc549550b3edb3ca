package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noprime/redirector/internal/bus"
	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/domain/message"
	"noprime/redirector/internal/state"
)

type fakeToolbar struct {
	mu     sync.Mutex
	icon   domain.IconSet
	title  string
	badges map[int]domain.Badge
}

func newFakeToolbar() *fakeToolbar {
	return &fakeToolbar{badges: make(map[int]domain.Badge)}
}

func (f *fakeToolbar) SetIcon(icons domain.IconSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.icon = icons
}

func (f *fakeToolbar) SetTitle(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
}

func (f *fakeToolbar) SetBadge(tabID int, badge domain.Badge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.badges[tabID] = badge
}

func (f *fakeToolbar) badge(tabID int) domain.Badge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.badges[tabID]
}

func (f *fakeToolbar) iconAndTitle() (domain.IconSet, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.icon, f.title
}

type fakeQuerier struct {
	tabs []int
}

func (f *fakeQuerier) QueryTabs(patterns []string) []int {
	return f.tabs
}

type harness struct {
	coord    *Coordinator
	bus      bus.Bus
	toolbar  *fakeToolbar
	settings state.SettingsStore
	tabs     state.TabStore
}

func newHarness(t *testing.T, openTabs ...int) *harness {
	t.Helper()

	b := bus.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	h := &harness{
		bus:      b,
		toolbar:  newFakeToolbar(),
		settings: state.NewMemorySettingsStore(),
		tabs:     state.NewMemoryTabStore(),
	}
	h.coord = New(h.settings, h.tabs, h.toolbar, &fakeQuerier{tabs: openTabs}, b, []string{"https://www.amazon.com/*"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	select {
	case <-h.coord.Ready():
	case <-time.After(time.Second):
		t.Fatal("coordinator not ready")
	}
	return h
}

func detection(matchType domain.MatchType) *domain.Detection {
	return &domain.Detection{
		ProductInfo: domain.ProductInfo{Brand: "Sony", Title: "Headphones", URL: "https://www.amazon.com/dp/B09XS7JWHH"},
		RedirectURL: "https://www.sony.com",
		MatchType:   matchType,
		StoreBrand:  "sony",
	}
}

func (h *harness) detect(t *testing.T, tabID int, d *domain.Detection) {
	t.Helper()
	require.NoError(t, bus.Post(context.Background(), h.bus, bus.CoordinatorAddress, tabID, &message.ProductDetected{Payload: d}))
}

func (h *harness) getProduct(t *testing.T, tabID int) *domain.Detection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := bus.Ask(ctx, h.bus, bus.CoordinatorAddress, 0, &message.GetProduct{TabID: &tabID})
	require.NoError(t, err)

	d, err := message.DecodeDetection(reply)
	require.NoError(t, err)
	return d
}

func TestStart_AppliesIconState(t *testing.T) {
	h := newHarness(t)

	icon, title := h.toolbar.iconAndTitle()
	assert.Equal(t, domain.IconEnabled, icon)
	assert.Equal(t, domain.TitleEnabled, title)
}

func TestProductDetected_CachesAndBadges(t *testing.T) {
	h := newHarness(t)

	want := detection(domain.MatchTypeSuspectBrand)
	h.detect(t, 5, want)

	assert.Equal(t, want, h.getProduct(t, 5))
	assert.Equal(t, domain.Badge{Text: "⚠", Color: "#dc2626"}, h.toolbar.badge(5))
}

func TestProductDetected_LastDetectionWins(t *testing.T) {
	h := newHarness(t)

	h.detect(t, 5, detection(domain.MatchTypeSearchFallback))
	h.detect(t, 5, detection(domain.MatchTypeBrand))

	assert.Equal(t, domain.MatchTypeBrand, h.getProduct(t, 5).MatchType)
	assert.Equal(t, domain.Badge{Text: "✓", Color: "#1a6b3c"}, h.toolbar.badge(5))
}

func TestProductDetected_WithoutSenderTabIsIgnored(t *testing.T) {
	h := newHarness(t)

	h.detect(t, 0, detection(domain.MatchTypeBrand))

	assert.Nil(t, h.getProduct(t, 0))
	assert.True(t, h.toolbar.badge(0).IsEmpty())
}

func TestProductDetected_WhileDisabledCachesWithoutBadge(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.SetEnabled(context.Background(), false))

	h.detect(t, 5, detection(domain.MatchTypeBrand))

	assert.NotNil(t, h.getProduct(t, 5))
	assert.True(t, h.toolbar.badge(5).IsEmpty())
}

func TestGetProduct_UnknownTab(t *testing.T) {
	h := newHarness(t)

	assert.Nil(t, h.getProduct(t, 42))
}

func TestGetProduct_WithoutTabIDGetsNoReply(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := bus.Ask(ctx, h.bus, bus.CoordinatorAddress, 0, &message.GetProduct{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTabRemoved_ForgetsState(t *testing.T) {
	h := newHarness(t)

	h.detect(t, 5, detection(domain.MatchTypeBrand))
	require.NotNil(t, h.getProduct(t, 5))

	require.NoError(t, h.coord.TabRemoved(context.Background(), 5))
	assert.Nil(t, h.getProduct(t, 5))
}

func TestTabUpdated(t *testing.T) {
	h := newHarness(t)

	h.detect(t, 5, detection(domain.MatchTypeBrand))
	require.NotNil(t, h.getProduct(t, 5))

	// Another product page keeps the cache until the page reports again.
	require.NoError(t, h.coord.TabUpdated(context.Background(), 5, "https://www.amazon.com/dp/B0BDHWDR12"))
	assert.NotNil(t, h.getProduct(t, 5))
	assert.False(t, h.toolbar.badge(5).IsEmpty())

	// Updates without an address change nothing.
	require.NoError(t, h.coord.TabUpdated(context.Background(), 5, ""))
	assert.NotNil(t, h.getProduct(t, 5))

	require.NoError(t, h.coord.TabUpdated(context.Background(), 5, "https://www.amazon.com/gp/cart/view.html"))
	assert.Nil(t, h.getProduct(t, 5))
	assert.True(t, h.toolbar.badge(5).IsEmpty())
}

func TestTabEvents_OrderedAfterDetections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := range 200 {
		h.detect(t, 5, detection(domain.MatchTypeBrand))
		require.NoError(t, h.coord.TabUpdated(ctx, 5, "https://www.amazon.com/gp/cart/view.html"))
		require.Nil(t, h.getProduct(t, 5), "update, iteration %d", i)
		require.True(t, h.toolbar.badge(5).IsEmpty(), "update, iteration %d", i)

		h.detect(t, 6, detection(domain.MatchTypeBrand))
		require.NoError(t, h.coord.TabRemoved(ctx, 6))
		require.Nil(t, h.getProduct(t, 6), "remove, iteration %d", i)
	}
}

func TestToggle_OffThenOnRestoresFromCache(t *testing.T) {
	h := newHarness(t, 5, 6, 7)
	ctx := context.Background()

	// Tabs 5 and 6 run controllers; tab 7 has none.
	tab5, err := h.bus.Subscribe(ctx, bus.TabAddress(5))
	require.NoError(t, err)
	tab6, err := h.bus.Subscribe(ctx, bus.TabAddress(6))
	require.NoError(t, err)

	h.detect(t, 5, detection(domain.MatchTypeBrand))
	h.detect(t, 6, detection(domain.MatchTypeSearchFallback))
	require.NotNil(t, h.getProduct(t, 6))

	before5, before6 := h.toolbar.badge(5), h.toolbar.badge(6)
	require.False(t, before5.IsEmpty())
	require.False(t, before6.IsEmpty())

	enabled, err := h.coord.Toggle(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	icon, title := h.toolbar.iconAndTitle()
	assert.Equal(t, domain.IconDisabled, icon)
	assert.Equal(t, domain.TitleDisabled, title)
	assert.True(t, h.toolbar.badge(5).IsEmpty())
	assert.True(t, h.toolbar.badge(6).IsEmpty())

	stored, err := h.settings.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, stored)

	enabled, err = h.coord.Toggle(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	icon, title = h.toolbar.iconAndTitle()
	assert.Equal(t, domain.IconEnabled, icon)
	assert.Equal(t, domain.TitleEnabled, title)
	assert.Equal(t, before5, h.toolbar.badge(5))
	assert.Equal(t, before6, h.toolbar.badge(6))
	assert.True(t, h.toolbar.badge(7).IsEmpty())

	// Each controller saw exactly the two toggles and was never queried.
	for _, ch := range []<-chan *bus.Delivery{tab5, tab6} {
		for _, want := range []bool{false, true} {
			select {
			case d := <-ch:
				require.Equal(t, message.TypeEnabledChanged, d.Envelope.Type)
				msg, err := message.Decode[message.EnabledChanged](d.Envelope)
				require.NoError(t, err)
				assert.Equal(t, want, msg.Enabled)
			case <-time.After(time.Second):
				t.Fatal("missing ENABLED_CHANGED")
			}
		}
		select {
		case d := <-ch:
			t.Fatalf("unexpected %s", d.Envelope.Type)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestEnabled(t *testing.T) {
	h := newHarness(t)

	enabled, err := h.coord.Enabled(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)

	_, err = h.coord.Toggle(context.Background())
	require.NoError(t, err)

	enabled, err = h.coord.Enabled(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestCallsAfterStop(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	c := New(state.NewMemorySettingsStore(), state.NewMemoryTabStore(), newFakeToolbar(), &fakeQuerier{}, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	_, err := c.Toggle(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, c.TabRemoved(context.Background(), 1), ErrStopped)
	assert.ErrorIs(t, c.TabUpdated(context.Background(), 1, "https://www.amazon.com/"), ErrStopped)
}
