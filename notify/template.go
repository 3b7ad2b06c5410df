// Package notify renders live-announcement messages and delivers them to a
// notification sink. Delivery is best-effort: failures are logged by callers,
// never retried.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
)

// RenderContext carries the values for the whitelisted template placeholders.
type RenderContext struct {
	Streamer string
	Title    string
	Viewers  string
	URL      string
}

// Render substitutes the {streamer}, {title}, {viewers} and {url} placeholders.
// Unknown placeholders and unbalanced braces are errors, so a typo in a custom
// template surfaces instead of producing a mangled announcement.
func Render(template string, rc RenderContext) (string, error) {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := template[i+1 : i+end]
			switch name {
			case "streamer":
				b.WriteString(rc.Streamer)
			case "title":
				b.WriteString(rc.Title)
			case "viewers":
				b.WriteString(rc.Viewers)
			case "url":
				b.WriteString(rc.URL)
			default:
				return "", fmt.Errorf("unknown placeholder {%s}", name)
			}
			i += end
		case '}':
			return "", fmt.Errorf("stray '}' at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// RenderOrDefault renders template, falling back to defaultTemplate when the
// custom template is malformed. The live-state update must never be blocked by
// a bad template, so this always returns a non-empty message.
func RenderOrDefault(template, defaultTemplate string, rc RenderContext) string {
	if template != "" {
		msg, err := Render(template, rc)
		if err == nil {
			return msg
		}
		slog.Warn("template render failed; using default", slog.String("streamer", rc.Streamer), slog.Any("err", err))
	}
	msg, err := Render(defaultTemplate, rc)
	if err != nil {
		return defaultTemplate
	}
	return msg
}
