package indexer

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlItem reads an HTML page. The title comes from <title>, falling back to
// the first <h1> and then the file name; the body is the inner HTML of <body>.
func htmlItem(absPath string) (*models.ContentItem, error) {
	src, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := nodeText(findElement(doc, atom.Title))
	if title == "" {
		title = nodeText(findElement(doc, atom.H1))
	}
	if title == "" {
		title = titleFromFilename(absPath)
	}

	body := string(src)
	if n := findElement(doc, atom.Body); n != nil {
		var buf bytes.Buffer
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := html.Render(&buf, c); err != nil {
				return nil, fmt.Errorf("render html: %w", err)
			}
		}
		body = buf.String()
	}
	return &models.ContentItem{Title: title, Body: body}, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return utils.CollapseWhitespace(b.String())
}
