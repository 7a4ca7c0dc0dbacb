// Package digest renders the top-ranked opportunities and delivers them to a chat.
package digest

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/sells-group/builder-radar/internal/model"
)

// Placeholder is shown for an absent prize pool or deadline.
const Placeholder = "TBD"

// Compose renders opportunities as a Telegram HTML message, in the given order.
// siteURL, when set, is appended as a footer link.
func Compose(opps []model.Opportunity, siteURL string) string {
	var b strings.Builder

	b.WriteString("🦞 <b>Web3 Builder Daily Digest</b>\n\n")
	if len(opps) == 0 {
		b.WriteString("No scored opportunities yet.\n")
	} else {
		fmt.Fprintf(&b, "<b>Top %d picks today:</b>\n\n", len(opps))
	}

	for i, o := range opps {
		fmt.Fprintf(&b, "%d. <b>%s</b>\n", i+1, html.EscapeString(o.Title))
		fmt.Fprintf(&b, "   Score: %s/10\n", formatScore(o.Score))
		fmt.Fprintf(&b, "   Prize: %s\n", html.EscapeString(orPlaceholder(o.PrizePool)))
		fmt.Fprintf(&b, "   Deadline: %s\n", formatDeadline(o))
		fmt.Fprintf(&b, "   <a href=\"%s\">View details</a>\n\n", html.EscapeString(o.URL))
	}

	if siteURL != "" {
		fmt.Fprintf(&b, "📊 More opportunities: %s\n", html.EscapeString(siteURL))
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatScore(s model.Score) string {
	v, ok := s.Number(model.FieldTotal)
	if !ok {
		return Placeholder
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDeadline(o model.Opportunity) string {
	if o.Deadline == nil {
		return Placeholder
	}
	return o.Deadline.Format("2006-01-02")
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}
