package state

import (
	"context"

	"noprime/redirector/internal/domain"
)

// SettingsStore holds the durable enabled flag.
type SettingsStore interface {
	// Enabled returns the stored flag, true when nothing is stored yet.
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// TabStore holds per-tab detections for the current session only.
type TabStore interface {
	// Get returns nil when nothing is stored for the tab.
	Get(ctx context.Context, tabID int) (*domain.TabState, error)
	Set(ctx context.Context, state *domain.TabState) error
	Delete(ctx context.Context, tabID int) error
}

// DefaultEnabled is the flag value before the user ever toggles.
const DefaultEnabled = true
