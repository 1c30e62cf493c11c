package tts

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	bareURLRe    = regexp.MustCompile(`https?://\S+`)
)

// MessageParser turns announcement text, which may contain markdown, into
// plain chunks a local engine can synthesize one at a time.
type MessageParser struct {
	maxChunk      int
	abbreviations map[string]bool
}

// ParserOption is a functional option for configuring the parser.
type ParserOption func(*MessageParser)

// WithMaxChunk sets the longest chunk handed to an engine, in runes.
func WithMaxChunk(n int) ParserOption {
	return func(p *MessageParser) {
		if n > 0 {
			p.maxChunk = n
		}
	}
}

// NewMessageParser creates a parser with default settings.
func NewMessageParser(opts ...ParserOption) *MessageParser {
	p := &MessageParser{
		maxChunk:      400,
		abbreviations: defaultAbbreviations(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlainText flattens markdown into a single speakable line. Code blocks,
// HTML and link targets are dropped; bare URLs are replaced with "link".
func (p *MessageParser) PlainText(markdown string) string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	p.walk(doc, source, &buf)

	out := bareURLRe.ReplaceAllString(buf.String(), "link")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(out, " "))
}

// Chunks returns the message as sentences, merging short neighbours so
// that no chunk exceeds the configured maximum unless a single sentence
// already does.
func (p *MessageParser) Chunks(markdown string) []string {
	sentences := p.sentences(p.PlainText(markdown))

	var chunks []string
	var cur strings.Builder
	for _, s := range sentences {
		if cur.Len() > 0 && len([]rune(cur.String()))+1+len([]rune(s)) > p.maxChunk {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func (p *MessageParser) walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.AutoLink:
		buf.WriteString("link")
		return

	case *ast.Image:
		// Alt text only
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			p.walk(c, source, buf)
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.TextBlock:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			p.walk(c, source, buf)
		}
		endSentence(buf)
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return
	}

	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		p.walk(c, source, buf)
	}
}

// endSentence terminates the text written so far with a period unless it
// already ends in punctuation.
func endSentence(buf *strings.Builder) {
	s := strings.TrimRightFunc(buf.String(), unicode.IsSpace)
	if s == "" {
		return
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
	default:
		buf.WriteByte('.')
	}
	buf.WriteByte(' ')
}

// sentences splits flattened text on terminal punctuation followed by a
// space and an upper-case letter or digit. Known abbreviations never split.
func (p *MessageParser) sentences(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0

	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if !p.isBoundary(runes, i) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func (p *MessageParser) isBoundary(runes []rune, pos int) bool {
	if pos == len(runes)-1 {
		return true
	}
	if !unicode.IsSpace(runes[pos+1]) {
		return false
	}

	if runes[pos] == '.' && p.abbreviations[strings.ToLower(wordBefore(runes, pos))] {
		return false
	}

	next := pos + 1
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	return next < len(runes) && (unicode.IsUpper(runes[next]) || unicode.IsDigit(runes[next]))
}

func wordBefore(runes []rune, pos int) string {
	start := pos
	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}
	return string(runes[start:pos])
}

// defaultAbbreviations returns abbreviations that never end a sentence.
func defaultAbbreviations() map[string]bool {
	return map[string]bool{
		"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
		"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
		"e.g": true, "i.e": true, "approx": true,
	}
}
