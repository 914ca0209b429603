package content

import (
	stdhtml "html"
	"strings"

	"github.com/hyperjump/kotae/pkg/utils"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DecodeEntities unescapes HTML entities until the string stops changing,
// so DecodeEntities(DecodeEntities(s)) == DecodeEntities(s). Every entity is
// longer than what it decodes to, so each changing pass shortens s and the
// loop ends.
func DecodeEntities(s string) string {
	for strings.IndexByte(s, '&') >= 0 {
		next := stdhtml.UnescapeString(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

// separatorTags end a run of text: their content never glues onto a neighbour's.
var separatorTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true, atom.Li: true,
	atom.Ul: true, atom.Ol: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Tr: true, atom.Td: true,
	atom.Th: true, atom.Table: true, atom.Blockquote: true, atom.Section: true,
	atom.Article: true, atom.Figure: true, atom.Figcaption: true, atom.Pre: true,
	atom.Dd: true, atom.Dt: true, atom.Img: true,
}

// StripTags returns the text content of an HTML fragment. Comments and the
// bodies of script and style elements are dropped.
func StripTags(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skip++
			}
			if separatorTags[a] {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
			if separatorTags[a] {
				b.WriteByte(' ')
			}
		}
	}
}

// CleanHTML strips tags, decodes entities and collapses whitespace.
func CleanHTML(fragment string) string {
	return utils.CollapseWhitespace(DecodeEntities(StripTags(fragment)))
}
