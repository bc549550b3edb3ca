package domain

// Badge is the per-tab toolbar badge. An empty Text clears it.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

var NoBadge = Badge{}

func (b Badge) IsEmpty() bool {
	return b.Text == ""
}

// IconSet maps icon sizes to image paths
type IconSet map[int]string

var (
	IconEnabled = IconSet{
		16:  "/icons/icon16.png",
		48:  "/icons/icon48.png",
		128: "/icons/icon128.png",
	}
	IconDisabled = IconSet{
		16:  "/icons/icon16-disabled.png",
		48:  "/icons/icon48-disabled.png",
		128: "/icons/icon128-disabled.png",
	}
)

const (
	TitleEnabled  = "NoPrime (click to disable)"
	TitleDisabled = "NoPrime (click to enable)"
)
