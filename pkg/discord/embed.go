package discord

import (
	"fmt"
	"strings"
	"time"
)

const (
	ColorGreen = 0x22c55e
	ColorRed   = 0xef4444
	ColorAmber = 0xf59e0b
	ColorBlue  = 0x5865f2
)

// Embed is the subset of a Discord message embed the portal sends.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

func stamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

func ApprovedEmbed(server string, now time.Time) Embed {
	return Embed{
		Title:       "Application Approved!",
		Description: fmt.Sprintf("Congratulations! Your application to **%s** has been approved. You now have access to the server.", server),
		Color:       ColorGreen,
		Timestamp:   stamp(now),
	}
}

func DeniedEmbed(server, reason string, now time.Time) Embed {
	desc := fmt.Sprintf("Unfortunately, your application to **%s** was not approved at this time.", server)
	if reason != "" {
		desc = fmt.Sprintf("Unfortunately, your application to **%s** was not approved.\n\n**Reason:** %s", server, reason)
	}
	return Embed{Title: "Application Denied", Description: desc, Color: ColorRed, Timestamp: stamp(now)}
}

// RevisionEmbed lists the flagged question texts in the given order.
func RevisionEmbed(server, reason string, questions []string, now time.Time) Embed {
	var b strings.Builder
	fmt.Fprintf(&b, "An admin has asked you to revise some answers on your application to **%s**.", server)
	if len(questions) > 0 {
		b.WriteString("\n\n**Questions to revise:**")
		for _, q := range questions {
			b.WriteString("\n• ")
			b.WriteString(q)
		}
	}
	if reason != "" {
		fmt.Fprintf(&b, "\n\n**Reason:** %s", reason)
	}
	b.WriteString("\n\nSign in to the portal to update your application.")
	return Embed{Title: "Revision Requested", Description: b.String(), Color: ColorAmber, Timestamp: stamp(now)}
}

// SubmittedEmbed announces a new or resubmitted application to staff.
func SubmittedEmbed(applicantName, applicantID, applicationID string, resubmitted bool, now time.Time) Embed {
	title := "New Whitelist Application"
	if resubmitted {
		title = "Application Resubmitted"
	}
	return Embed{
		Title:       title,
		Description: fmt.Sprintf("**%s** (<@%s>) is waiting for review.", applicantName, applicantID),
		Color:       ColorBlue,
		Fields:      []EmbedField{{Name: "Application", Value: applicationID}},
		Timestamp:   stamp(now),
	}
}
