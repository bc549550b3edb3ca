package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"noprime/redirector/internal/bus"
	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/domain/message"
	"noprime/redirector/internal/extractor"
	"noprime/redirector/internal/state"
)

// ErrStopped is returned by calls made while the coordinator is not running.
var ErrStopped = errors.New("coordinator is not running")

// Toolbar is the browser action: one icon and title, a badge per tab.
type Toolbar interface {
	SetIcon(icons domain.IconSet)
	SetTitle(title string)
	SetBadge(tabID int, badge domain.Badge)
}

// TabQuerier lists open tabs whose address matches any of the patterns.
type TabQuerier interface {
	QueryTabs(patterns []string) []int
}

type event struct {
	name string
	run  func(ctx context.Context)
	done chan struct{}
}

// Coordinator owns the enabled flag and the per-tab detection cache. Bus
// messages and host calls are handled one at a time on the goroutine
// running Run. Tab lifecycle events travel through the bus mailbox so they
// stay ordered with the tab's own messages.
type Coordinator struct {
	settings state.SettingsStore
	tabs     state.TabStore
	toolbar  Toolbar
	querier  TabQuerier
	bus      bus.Bus
	patterns []string

	events  chan event
	ready   chan struct{}
	stopped chan struct{}
	now     func() time.Time
}

func New(
	settings state.SettingsStore,
	tabs state.TabStore,
	toolbar Toolbar,
	querier TabQuerier,
	b bus.Bus,
	patterns []string,
) *Coordinator {
	return &Coordinator{
		settings: settings,
		tabs:     tabs,
		toolbar:  toolbar,
		querier:  querier,
		bus:      b,
		patterns: patterns,
		events:   make(chan event),
		ready:    make(chan struct{}),
		stopped:  make(chan struct{}),
		now:      time.Now,
	}
}

// Run applies the icon state and then serves the coordinator address until
// ctx ends.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)

	deliveries, err := c.bus.Subscribe(ctx, bus.CoordinatorAddress)
	if err != nil {
		return fmt.Errorf("failed to subscribe coordinator: %w", err)
	}
	defer func() {
		if err := c.bus.Unsubscribe(bus.CoordinatorAddress); err != nil {
			log.Warnf("⚠️ Failed to unsubscribe coordinator: %v", err)
		}
	}()

	c.applyIcon(c.enabled(ctx))
	close(c.ready)
	log.Info("🧭 Coordinator started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Coordinator stopped")
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)

		case ev := <-c.events:
			log.Debugf("Coordinator event: %s", ev.name)
			ev.run(ctx)
			close(ev.done)
		}
	}
}

// Ready is closed once Run is subscribed and has applied the icon.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

func (c *Coordinator) do(ctx context.Context, name string, fn func(ctx context.Context)) error {
	ev := event{name: name, run: fn, done: make(chan struct{})}

	select {
	case c.events <- ev:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ev.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enabled returns the current flag.
func (c *Coordinator) Enabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := c.do(ctx, "enabled", func(ctx context.Context) {
		enabled = c.enabled(ctx)
	})
	return enabled, err
}

// Toggle flips and persists the flag, updates the icon, then tells every
// retailer tab. Tabs switching on get their badge back from the cache.
func (c *Coordinator) Toggle(ctx context.Context) (bool, error) {
	var (
		enabled bool
		toggErr error
	)
	err := c.do(ctx, "toggle", func(ctx context.Context) {
		enabled, toggErr = c.toggle(ctx)
	})
	if err != nil {
		return false, err
	}
	return enabled, toggErr
}

func (c *Coordinator) toggle(ctx context.Context) (bool, error) {
	enabled := !c.enabled(ctx)
	if err := c.settings.SetEnabled(ctx, enabled); err != nil {
		return !enabled, fmt.Errorf("failed to persist enabled flag: %w", err)
	}

	c.applyIcon(enabled)
	log.Infof("🔀 NoPrime %s", lo.Ternary(enabled, "enabled", "disabled"))

	for _, tabID := range lo.Uniq(c.querier.QueryTabs(c.patterns)) {
		err := bus.Post(ctx, c.bus, bus.TabAddress(tabID), 0, &message.EnabledChanged{Enabled: enabled})
		if err != nil {
			// Tabs without a controller are expected.
			log.Debugf("Tab %d did not take %s: %v", tabID, message.TypeEnabledChanged, err)
		}

		if !enabled {
			c.toolbar.SetBadge(tabID, domain.NoBadge)
			continue
		}

		st, err := c.tabs.Get(ctx, tabID)
		if err != nil {
			log.Warnf("⚠️ Failed to restore badge for tab %d: %v", tabID, err)
			continue
		}
		if st != nil && st.Detection != nil {
			c.toolbar.SetBadge(tabID, st.Detection.MatchType.GetBadge())
		}
	}

	return enabled, nil
}

// TabRemoved forgets a closed tab. It goes through the coordinator mailbox
// so detections the tab posted before closing cannot outlive it.
func (c *Coordinator) TabRemoved(ctx context.Context, tabID int) error {
	return c.notify(ctx, &message.TabRemoved{TabID: tabID})
}

// TabUpdated reacts to a tab's address changing. Leaving product pages
// clears the tab's state and badge.
func (c *Coordinator) TabUpdated(ctx context.Context, tabID int, newURL string) error {
	if newURL == "" {
		return nil
	}
	return c.notify(ctx, &message.TabUpdated{TabID: tabID, URL: newURL})
}

// notify posts a host event to the coordinator address and waits until
// Run has handled it.
func (c *Coordinator) notify(ctx context.Context, msg message.Message) error {
	select {
	case <-c.ready:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	askCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopped:
			cancel()
		case <-askCtx.Done():
		}
	}()

	_, err := bus.Ask(askCtx, c.bus, bus.CoordinatorAddress, 0, msg)
	if err == nil {
		return nil
	}
	select {
	case <-c.stopped:
		return ErrStopped
	default:
	}
	return fmt.Errorf("failed to deliver %s: %w", msg.MessageType(), err)
}

func (c *Coordinator) handle(ctx context.Context, d *bus.Delivery) {
	switch d.Envelope.Type {
	case message.TypeProductDetected:
		c.productDetected(ctx, d.Envelope)

	case message.TypeGetProduct:
		c.getProduct(ctx, d)

	case message.TypeTabUpdated:
		c.tabUpdated(ctx, d)

	case message.TypeTabRemoved:
		c.tabRemoved(ctx, d)

	default:
		log.Debugf("Coordinator ignoring %s", d.Envelope.Type)
	}
}

func (c *Coordinator) productDetected(ctx context.Context, env *message.Envelope) {
	tabID := env.TabID
	if tabID == 0 {
		log.Debugf("Ignoring %s without a sender tab", env.Type)
		return
	}

	msg, err := message.Decode[message.ProductDetected](env)
	if err != nil || msg.Payload == nil {
		log.Warnf("⚠️ Malformed %s from tab %d: %v", env.Type, tabID, err)
		return
	}

	err = c.tabs.Set(ctx, &domain.TabState{
		TabID:      tabID,
		Detection:  msg.Payload,
		DetectedAt: c.now(),
	})
	if err != nil {
		log.Warnf("⚠️ Failed to cache detection for tab %d: %v", tabID, err)
		return
	}

	if !c.enabled(ctx) {
		return
	}
	c.toolbar.SetBadge(tabID, msg.Payload.MatchType.GetBadge())
	log.Debugf("Tab %d detected %s", tabID, msg.Payload.MatchType)
}

func (c *Coordinator) getProduct(ctx context.Context, d *bus.Delivery) {
	msg, err := message.Decode[message.GetProduct](d.Envelope)
	if err != nil || msg.TabID == nil {
		log.Debugf("Ignoring %s without a tab id", d.Envelope.Type)
		return
	}

	reply := &message.Reply{}
	st, err := c.tabs.Get(ctx, *msg.TabID)
	if err != nil {
		log.Warnf("⚠️ Failed to read state for tab %d: %v", *msg.TabID, err)
	} else if st != nil {
		reply.Detection = st.Detection
	}

	if err := d.Reply(ctx, reply); err != nil {
		log.Warnf("⚠️ %v", err)
	}
}

func (c *Coordinator) tabUpdated(ctx context.Context, d *bus.Delivery) {
	msg, err := message.Decode[message.TabUpdated](d.Envelope)
	if err != nil {
		log.Warnf("⚠️ Malformed %s: %v", d.Envelope.Type, err)
		return
	}

	if msg.URL != "" && !extractor.IsProductURL(msg.URL) {
		if err := c.tabs.Delete(ctx, msg.TabID); err != nil {
			log.Warnf("⚠️ Failed to clear state for tab %d: %v", msg.TabID, err)
		}
		c.toolbar.SetBadge(msg.TabID, domain.NoBadge)
	}

	if err := d.Reply(ctx, &message.Reply{}); err != nil {
		log.Warnf("⚠️ %v", err)
	}
}

func (c *Coordinator) tabRemoved(ctx context.Context, d *bus.Delivery) {
	msg, err := message.Decode[message.TabRemoved](d.Envelope)
	if err != nil {
		log.Warnf("⚠️ Malformed %s: %v", d.Envelope.Type, err)
		return
	}

	if err := c.tabs.Delete(ctx, msg.TabID); err != nil {
		log.Warnf("⚠️ Failed to forget tab %d: %v", msg.TabID, err)
	}
	log.Debugf("Forgot tab %d", msg.TabID)

	if err := d.Reply(ctx, &message.Reply{}); err != nil {
		log.Warnf("⚠️ %v", err)
	}
}

// enabled treats an unreadable flag as the default.
func (c *Coordinator) enabled(ctx context.Context) bool {
	enabled, err := c.settings.Enabled(ctx)
	if err != nil {
		log.Warnf("⚠️ Failed to read enabled flag, assuming %v: %v", state.DefaultEnabled, err)
		return state.DefaultEnabled
	}
	return enabled
}

func (c *Coordinator) applyIcon(enabled bool) {
	if enabled {
		c.toolbar.SetIcon(domain.IconEnabled)
		c.toolbar.SetTitle(domain.TitleEnabled)
		return
	}
	c.toolbar.SetIcon(domain.IconDisabled)
	c.toolbar.SetTitle(domain.TitleDisabled)
}
