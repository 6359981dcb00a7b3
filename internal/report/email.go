package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

const emailBoundary = "testpilot-alt"

const emailBodyStyle = `font-family: Calibri, Arial, sans-serif; font-size: 11pt; color: #1f1f1f; line-height: 1.35;`

func buildEML(subject, body string) string {
	headers := []string{
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", emailBoundary),
		fmt.Sprintf("Subject: %s", subject),
	}
	plain := normalizeCRLF(markdownToEmailPlain(body))
	htmlBody := markdownToEmailHTML(body)

	var out strings.Builder
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")
	out.WriteString("--" + emailBoundary + "\r\n")
	out.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	out.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	out.WriteString(plain)
	if !strings.HasSuffix(plain, "\r\n") {
		out.WriteString("\r\n")
	}
	out.WriteString("\r\n--" + emailBoundary + "\r\n")
	out.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	out.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	out.WriteString(htmlBody)
	out.WriteString("\r\n--" + emailBoundary + "--\r\n")
	return out.String()
}

func normalizeCRLF(s string) string {
	normalized := strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(normalized, "\n", "\r\n")
}

func headingText(trimmed string) (string, bool) {
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	text := strings.TrimLeft(trimmed, "#")
	if !strings.HasPrefix(text, " ") {
		return "", false
	}
	return strings.TrimSpace(text), true
}

// markdownToEmailPlain drops heading marks, bold marks and code fences, and
// collapses runs of blank lines.
func markdownToEmailPlain(body string) string {
	var out []string
	prevBlank := false
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "```" {
			continue
		}
		if text, ok := headingText(trimmed); ok {
			line = text
		}
		line = strings.ReplaceAll(line, "**", "")
		if strings.TrimSpace(line) == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
			out = append(out, "")
			continue
		}
		prevBlank = false
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

var boldTokenRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)

var orderedItemRe = regexp.MustCompile(`^\d+\.\s+`)

func markdownToEmailHTML(body string) string {
	var b strings.Builder
	b.WriteString(`<html><body style="` + emailBodyStyle + `">`)
	openList := ""
	closeList := func() {
		if openList != "" {
			b.WriteString(`</` + openList + `>`)
			openList = ""
		}
	}
	openListOf := func(tag string) {
		if openList == tag {
			return
		}
		closeList()
		b.WriteString(`<` + tag + ` style="margin: 0 0 0 18px; padding-left: 18px;">`)
		openList = tag
	}

	inCode := false
	for _, raw := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)

		if trimmed == "```" {
			closeList()
			if inCode {
				b.WriteString(`</pre>`)
			} else {
				b.WriteString(`<pre style="background: #f4f4f4; padding: 8px; white-space: pre-wrap;">`)
			}
			inCode = !inCode
			continue
		}
		if inCode {
			b.WriteString(html.EscapeString(line) + "\n")
			continue
		}

		switch {
		case trimmed == "":
			closeList()
			b.WriteString(`<div style="height: 10px;"></div>`)
		case strings.HasPrefix(trimmed, "#"):
			text, ok := headingText(trimmed)
			if !ok {
				closeList()
				b.WriteString(`<div style="margin: 2px 0;">` + renderInlineBold(trimmed) + `</div>`)
				continue
			}
			closeList()
			b.WriteString(`<div style="font-weight: 700; margin: 12px 0 6px 0;">` + renderInlineBold(text) + `</div>`)
		case strings.HasPrefix(trimmed, "- "):
			openListOf("ul")
			b.WriteString(`<li style="margin: 2px 0;">` + renderInlineBold(strings.TrimSpace(trimmed[2:])) + `</li>`)
		case orderedItemRe.MatchString(trimmed):
			openListOf("ol")
			b.WriteString(`<li style="margin: 2px 0;">` + renderInlineBold(orderedItemRe.ReplaceAllString(trimmed, "")) + `</li>`)
		case openList == "ol" && strings.HasPrefix(line, "   "):
			b.WriteString(`<div style="margin: 0 0 4px 0; color: #555;">` + renderInlineBold(trimmed) + `</div>`)
		default:
			closeList()
			b.WriteString(`<div style="margin: 2px 0;">` + renderInlineBold(trimmed) + `</div>`)
		}
	}
	if inCode {
		b.WriteString(`</pre>`)
	}
	closeList()
	b.WriteString(`</body></html>`)
	return b.String()
}

func renderInlineBold(s string) string {
	matches := boldTokenRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return html.EscapeString(s)
	}
	var out strings.Builder
	last := 0
	for _, m := range matches {
		out.WriteString(html.EscapeString(s[last:m[0]]))
		out.WriteString("<strong>")
		out.WriteString(html.EscapeString(s[m[2]:m[3]]))
		out.WriteString("</strong>")
		last = m[1]
	}
	out.WriteString(html.EscapeString(s[last:]))
	return out.String()
}
