package page

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"noprime/redirector/internal/domain"
)

// BannerID is the id of the single banner element a page may carry.
const BannerID = "no-prime-banner"

// Segment is a run of banner text, optionally emphasised.
type Segment struct {
	Text   string `json:"text"`
	Strong bool   `json:"strong,omitempty"`
}

// Action is a link button on the banner.
type Action struct {
	Label   string `json:"label"`
	URL     string `json:"url"`
	Primary bool   `json:"primary"`
}

// Banner describes what to render. Variant selects the styling.
type Banner struct {
	Variant domain.MatchType `json:"variant"`
	Message []Segment        `json:"message"`
	Actions []Action         `json:"actions"`
}

// Text is the message without markup.
func (b *Banner) Text() string {
	var sb strings.Builder
	for _, seg := range b.Message {
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// PrimaryAction returns the first primary action, if any.
func (b *Banner) PrimaryAction() (Action, bool) {
	for _, a := range b.Actions {
		if a.Primary {
			return a, true
		}
	}
	return Action{}, false
}

func (b *Banner) className() string {
	switch b.Variant {
	case domain.MatchTypeSearchFallback:
		return "no-prime-fallback"
	case domain.MatchTypeSuspectBrand:
		return "no-prime-warning"
	default:
		return ""
	}
}

// node builds the banner element tree. Text is carried in text nodes, so
// the renderer escapes it.
func (b *Banner) node() *html.Node {
	banner := element(atom.Div, attr("id", BannerID), attr("role", "alert"))
	if class := b.className(); class != "" {
		banner.Attr = append(banner.Attr, attr("class", class))
	}

	msg := element(atom.Span, attr("class", "no-prime-msg"))
	for _, seg := range b.Message {
		if seg.Strong {
			strong := element(atom.Strong)
			strong.AppendChild(text(seg.Text))
			msg.AppendChild(strong)
			continue
		}
		msg.AppendChild(text(seg.Text))
	}

	actions := element(atom.Div, attr("class", "no-prime-actions"))
	for _, a := range b.Actions {
		class := "no-prime-btn no-prime-btn-secondary"
		if a.Primary {
			class = "no-prime-btn no-prime-btn-primary"
		}
		link := element(atom.A,
			attr("class", class),
			attr("href", a.URL),
			attr("target", "_blank"),
			attr("rel", "noopener noreferrer"),
		)
		link.AppendChild(text(a.Label))
		actions.AppendChild(link)
	}

	dismiss := element(atom.Button, attr("class", "no-prime-btn no-prime-btn-dismiss"), attr("title", "Dismiss"))
	dismiss.AppendChild(text("✕"))
	actions.AppendChild(dismiss)

	content := element(atom.Div, attr("class", "no-prime-content"))
	content.AppendChild(msg)
	content.AppendChild(actions)
	banner.AppendChild(content)

	return banner
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
