package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// HTML renders items as the chat page markup: message-row sent|received
// blocks and message-date-divider separators. All user-supplied text goes
// through a strict sanitiser, so no markup from a message survives.
func HTML(items []Item) string {
	var b strings.Builder
	for _, it := range items {
		if it.IsDivider() {
			fmt.Fprintf(&b, `<div class="message-date-divider"><span>%s</span></div>`+"\n", strict.Sanitize(it.Divider))
			continue
		}
		row := it.Row
		dir := "received"
		if row.Sent {
			dir = "sent"
		}
		fmt.Fprintf(&b, `<div class="message-row %s" data-message-id="%s">`, dir, html.EscapeString(row.ID))
		if !row.Sent {
			fmt.Fprintf(&b, `<div class="message-avatar">%s</div>`, strict.Sanitize(row.Avatar))
		}
		b.WriteString(`<div class="message-content">`)
		fmt.Fprintf(&b, `<div class="message-time">%s</div>`, html.EscapeString(row.Time))
		fmt.Fprintf(&b, `<div class="message-text">%s`, strict.Sanitize(row.Text))
		if row.Attachment != nil {
			fmt.Fprintf(&b, `<div class="message-attachment"><a href="%s" target="_blank">%s</a></div>`,
				html.EscapeString(row.Attachment.URL), strict.Sanitize(row.Attachment.Label))
		}
		b.WriteString(`</div>`)
		if row.Marker != "" {
			fmt.Fprintf(&b, `<div class="message-status %s">%s</div>`, html.EscapeString(string(row.Status)), strict.Sanitize(row.Marker))
		}
		b.WriteString("</div></div>\n")
	}
	return b.String()
}
