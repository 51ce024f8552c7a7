package tui

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	codeBlockRegex = regexp.MustCompile(`(?s)<pre><code(?: class="language-([a-zA-Z0-9]+)")?>(.*?)</code></pre>`)
	inlineCodeRe   = regexp.MustCompile(`<code>([^<]+)</code>`)
	headingRegex   = regexp.MustCompile(`<h[1-6][^>]*>(.*?)</h[1-6]>`)
	strongRegex    = regexp.MustCompile(`<strong>(.*?)</strong>`)
	emRegex        = regexp.MustCompile(`<em>(.*?)</em>`)
	liRegex        = regexp.MustCompile(`<li>(.*?)</li>`)
	htmlTagRegex   = regexp.MustCompile(`<[^>]+>`)
	multiNewline   = regexp.MustCompile(`\n{3,}`)
)

// MarkdownRenderer renders the assistant's markdown replies for the terminal,
// with chroma-highlighted code blocks.
type MarkdownRenderer struct {
	goldmark.Markdown
	formatter chroma.Formatter
	style     *chroma.Style
	theme     Theme
}

func NewMarkdownRenderer(theme Theme) *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	return &MarkdownRenderer{
		Markdown:  md,
		formatter: formatters.Get("terminal256"),
		style:     styles.Get("monokai"),
		theme:     theme,
	}
}

// Render converts markdown to styled terminal text. On any conversion error
// the raw content is returned unchanged.
func (r *MarkdownRenderer) Render(content string, width int) string {
	var buf bytes.Buffer
	if err := r.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return r.formatForTerminal(buf.String(), width)
}

func (r *MarkdownRenderer) formatForTerminal(htmlContent string, width int) string {
	result := htmlContent

	result = codeBlockRegex.ReplaceAllStringFunc(result, func(m string) string {
		matches := codeBlockRegex.FindStringSubmatch(m)
		if len(matches) < 3 {
			return m
		}
		code := decodeHTMLEntities(matches[2])
		return "\n" + r.highlight(strings.TrimRight(code, "\n"), matches[1]) + "\n"
	})

	result = inlineCodeRe.ReplaceAllStringFunc(result, func(m string) string {
		matches := inlineCodeRe.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		return lipgloss.NewStyle().Foreground(r.theme.Warn).Render(decodeHTMLEntities(matches[1]))
	})

	result = headingRegex.ReplaceAllStringFunc(result, func(m string) string {
		matches := headingRegex.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		return lipgloss.NewStyle().Bold(true).Foreground(r.theme.Accent).Render(matches[1]) + "\n"
	})

	result = strongRegex.ReplaceAllString(result, "\x1b[1m$1\x1b[22m")
	result = emRegex.ReplaceAllString(result, "\x1b[3m$1\x1b[23m")
	result = liRegex.ReplaceAllString(result, "  • $1\n")

	result = htmlTagRegex.ReplaceAllString(result, "")
	result = decodeHTMLEntities(result)
	result = multiNewline.ReplaceAllString(result, "\n\n")
	result = strings.TrimSpace(result)

	if width > 0 {
		result = lipgloss.NewStyle().Width(width).Render(result)
	}
	return result
}

func (r *MarkdownRenderer) highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var out bytes.Buffer
	if err := r.formatter.Format(&out, r.style, iterator); err != nil {
		return code
	}
	return out.String()
}

func decodeHTMLEntities(s string) string {
	replacer := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#39;", "'",
	)
	return replacer.Replace(s)
}
