package cli

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/hawachat/internal/models"
)

const timeLayout = "15:04"

func statusTicks(s models.Status) string {
	switch s {
	case models.StatusSent:
		return "✓"
	case models.StatusDelivered:
		return "✓✓"
	case models.StatusRead:
		return "✓✓ read"
	}
	return ""
}

// shorten keeps long attachments readable; data URIs are cut to their header.
func shorten(s string, n int) string {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i > 0 {
		return s[:i] + ",..."
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatMessage(m models.Message, self string) string {
	who := m.From
	if m.From == self {
		who = "you"
	}

	var body string
	switch m.Type {
	case models.MessageTypeImage, models.MessageTypeFile:
		body = fmt.Sprintf("[%s] %s", m.Type, shorten(m.Attachment, 48))
		if m.Text != "" {
			body += " " + m.Text
		}
	default:
		body = m.Text
	}

	line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format(timeLayout), who, body)
	if m.From == self {
		if t := statusTicks(m.Status); t != "" {
			line += "  " + t
		}
	}
	return line
}

func formatUser(u models.User, phone string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", u.Avatar, u.Name)
	if u.IsVerified {
		b.WriteString(" ☑")
	}
	fmt.Fprintf(&b, "\n  id:     %s\n  phone:  %s\n  status: %s", u.ID, phone, u.Status)
	if u.Bio != "" {
		fmt.Fprintf(&b, "\n  bio:    %s", u.Bio)
	}
	presence := "offline"
	if u.IsOnline {
		presence = "online"
	}
	fmt.Fprintf(&b, "\n  %s", presence)
	return b.String()
}
