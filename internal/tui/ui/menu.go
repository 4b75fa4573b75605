package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// DefaultMenuRows is the number of hints stacked per menu column.
const DefaultMenuRows = 6

// Menu lays out keyboard hints in columns of at most rows entries.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
		rows:     DefaultMenuRows,
	}
}

// Update renders hints column by column. Duplicate keys keep their first
// hint, so view bindings shadow globals.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.layout(dedupe(hints)))
}

func dedupe(hints []MenuHint) []MenuHint {
	seen := make(map[string]bool, len(hints))
	out := hints[:0:0]
	for _, h := range hints {
		if seen[h.Key] {
			continue
		}
		seen[h.Key] = true
		out = append(out, h)
	}
	return out
}

func (m *Menu) layout(hints []MenuHint) string {
	if len(hints) == 0 {
		return ""
	}
	cols := (len(hints) + m.rows - 1) / m.rows
	cells := make([][]string, cols)
	widths := make([]int, cols)
	for i, h := range hints {
		col := i / m.rows
		kc := ColorName(m.theme.MenuKeyColor)
		if h.Numeric {
			kc = ColorName(m.theme.CounterColor)
		}
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", kc, tview.Escape(h.Key), h.Description)
		cells[col] = append(cells[col], cell)
		widths[col] = max(widths[col], tview.TaggedStringWidth(cell))
	}

	var b strings.Builder
	for row := 0; row < min(m.rows, len(hints)); row++ {
		for col := range cells {
			if row >= len(cells[col]) {
				continue
			}
			cell := cells[col][row]
			b.WriteString(cell)
			if col < cols-1 {
				b.WriteString(strings.Repeat(" ", widths[col]-tview.TaggedStringWidth(cell)+2))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
