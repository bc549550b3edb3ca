package message

import "noprime/redirector/internal/domain"

const (
	TypeProductDetected = "PRODUCT_DETECTED"
	TypeGetProduct      = "GET_PRODUCT"
	TypeQueryProduct    = "QUERY_PRODUCT"
	TypeEnabledChanged  = "ENABLED_CHANGED"
	TypeTabUpdated      = "TAB_UPDATED"
	TypeTabRemoved      = "TAB_REMOVED"
	TypeReply           = "REPLY"
)

// ProductDetected is sent by a page controller after each detection.
type ProductDetected struct {
	Payload *domain.Detection `json:"payload"`
}

func (m *ProductDetected) MessageType() string {
	return TypeProductDetected
}

// GetProduct asks the coordinator for the cached state of a tab.
type GetProduct struct {
	TabID *int `json:"tabId"`
}

func (m *GetProduct) MessageType() string {
	return TypeGetProduct
}

// QueryProduct asks a page controller to recompute its detection.
type QueryProduct struct{}

func (m *QueryProduct) MessageType() string {
	return TypeQueryProduct
}

// EnabledChanged is broadcast by the coordinator after a toggle.
type EnabledChanged struct {
	Enabled bool `json:"enabled"`
}

func (m *EnabledChanged) MessageType() string {
	return TypeEnabledChanged
}

// TabUpdated is posted by the host when a tab's address changes. It shares
// the coordinator mailbox with the tab's detections so both are handled in
// the order they were sent.
type TabUpdated struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

func (m *TabUpdated) MessageType() string {
	return TypeTabUpdated
}

// TabRemoved is posted by the host after a tab closes.
type TabRemoved struct {
	TabID int `json:"tabId"`
}

func (m *TabRemoved) MessageType() string {
	return TypeTabRemoved
}

// Reply carries a request's answer. A nil Detection encodes as null.
type Reply struct {
	Detection *domain.Detection
}

func (m *Reply) MessageType() string {
	return TypeReply
}

// MarshalJSON makes the reply payload the bare detection (or null).
func (m *Reply) MarshalJSON() ([]byte, error) {
	return marshalDetection(m.Detection)
}
