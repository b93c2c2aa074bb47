package reading

import (
	"regexp"
	"strings"
)

// Section is one displayed block of a reading.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Quote is the attributed closing quote.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// Reading is generated text split for display.
type Reading struct {
	Text     string    `json:"reading"`
	Sections []Section `json:"sections"`
	Quote    *Quote    `json:"quote,omitempty"`

	// Structured is false when the text was shown as a single section.
	Structured bool `json:"structured"`
}

var (
	// "quote" - Name, on its own line
	quoteLine = regexp.MustCompile(`^["\x{201C}](.+?)["\x{201D}]\s*[-\x{2013}\x{2014}~]+\s*(.+?)\s*$`)

	// "quote" - Name, closing a paragraph
	quoteTail = regexp.MustCompile(`\s*["\x{201C}]([^"\x{201C}\x{201D}]{8,})["\x{201D}]\s*[-\x{2013}\x{2014}~]+\s*([^"\n]{2,80}?)\.?\s*$`)

	// "Past:", "**Present** -", "Future card:" and similar leading labels
	headingPrefix = regexp.MustCompile(`^(?i)(?:\*\*|#+\s*)?(?:the\s+)?(?:past|present|future|summary)(?:\s+card)?\s*(?:\*\*)?\s*(?::|[-\x{2013}\x{2014}]\s)\s*(?:\*\*)?\s*`)
)

// ParseReading splits generated text into Past, Present, Future and Summary
// sections plus an optional quote. Text that does not fit that shape becomes a
// single section; parsing never fails.
func ParseReading(text string) *Reading {
	text = strings.TrimSpace(text)
	r := &Reading{Text: text}

	parts := splitParagraphs(text, "\n\n")
	if len(parts) < 4 {
		parts = splitParagraphs(text, "\n")
	}
	if len(parts) < 4 {
		r.Sections = []Section{{Title: "Your Reading", Body: text}}
		return r
	}

	rest := parts[3:]
	if len(rest) > 1 {
		if m := quoteLine.FindStringSubmatch(rest[len(rest)-1]); m != nil {
			r.Quote = &Quote{Text: m[1], Author: cleanAuthor(m[2])}
			rest = rest[:len(rest)-1]
		}
	}
	summary := strings.Join(rest, "\n\n")
	if r.Quote == nil {
		if loc := quoteTail.FindStringSubmatchIndex(summary); loc != nil {
			r.Quote = &Quote{Text: summary[loc[2]:loc[3]], Author: cleanAuthor(summary[loc[4]:loc[5]])}
			summary = strings.TrimSpace(summary[:loc[0]])
		}
	}

	r.Sections = []Section{
		{Title: Positions[0], Body: stripHeading(parts[0])},
		{Title: Positions[1], Body: stripHeading(parts[1])},
		{Title: Positions[2], Body: stripHeading(parts[2])},
		{Title: "Summary", Body: stripHeading(summary)},
	}
	r.Structured = true
	return r
}

func splitParagraphs(text, sep string) []string {
	var out []string
	for _, p := range strings.Split(text, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stripHeading(s string) string {
	return strings.TrimSpace(headingPrefix.ReplaceAllString(s, ""))
}

func cleanAuthor(s string) string {
	return strings.Trim(strings.TrimSpace(s), "*_.")
}
