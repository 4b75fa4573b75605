package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/rivo/tview"
)

// TerminalStyle holds the tview color names used by TerminalText.
type TerminalStyle struct {
	Sent     string
	Received string
	Muted    string
	Error    string
	Link     string
}

// DefaultTerminalStyle matches the dark TUI theme.
func DefaultTerminalStyle() TerminalStyle {
	return TerminalStyle{
		Sent:     "green",
		Received: "aqua",
		Muted:    "gray",
		Error:    "red",
		Link:     "yellow",
	}
}

// TerminalText renders items as tview markup. Message content is escaped
// and stripped of runes tcell cannot lay out.
func TerminalText(items []Item, style TerminalStyle) string {
	var b strings.Builder
	for _, it := range items {
		if it.IsDivider() {
			fmt.Fprintf(&b, "[%s::d]──────── %s ────────[-:-:-]\n\n", style.Muted, tview.Escape(it.Divider))
			continue
		}
		row := it.Row
		color := style.Received
		header := fmt.Sprintf("(%s) %s", row.Avatar, row.Sender)
		if row.Sent {
			color = style.Sent
			header = row.Sender
		}
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [%s::d]%s[-:-:-]",
			color, tview.Escape(Sanitize(header)), style.Muted, row.Time)
		if row.Marker != "" {
			markerColor := style.Muted
			if row.Status == chat.Failed {
				markerColor = style.Error
			}
			fmt.Fprintf(&b, " [%s]%s[-]", markerColor, tview.Escape(row.Marker))
		}
		b.WriteByte('\n')
		if row.Text != "" {
			b.WriteString(tview.Escape(Sanitize(row.Text)))
			b.WriteByte('\n')
		}
		if row.Attachment != nil {
			fmt.Fprintf(&b, "[%s::u]📎 %s[-:-:-] [%s]%s[-]\n",
				style.Link, tview.Escape(Sanitize(row.Attachment.Label)), style.Muted, tview.Escape(row.Attachment.URL))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Sanitize removes codepoints that break tcell cell layout:
// skin tone modifiers, zero width joiners and variation selectors.
// 👍🏻 becomes 👍, which renders as a single 2-cell-wide character.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
