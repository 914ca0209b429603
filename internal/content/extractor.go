// Package content flattens stored site content into plain text for matching.
package content

import (
	"context"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const sectionSeparator = "\n\n"

// autoExcerptWords is the length of an excerpt derived from the body.
const autoExcerptWords = 55

// ItemGetter fetches a content item by id.
type ItemGetter interface {
	GetItem(ctx context.Context, id string) (*models.ContentItem, error)
}

// Extractor turns content items into flat text.
type Extractor struct {
	items ItemGetter
}

// NewExtractor returns an Extractor. items may be nil when only Extract is used.
func NewExtractor(items ItemGetter) *Extractor {
	return &Extractor{items: items}
}

// ExtractByID returns the flattened text of the item with id, or "" when the
// item cannot be loaded.
func (e *Extractor) ExtractByID(ctx context.Context, id string) string {
	if e.items == nil {
		return ""
	}
	item, err := e.items.GetItem(ctx, id)
	if err != nil || item == nil {
		return ""
	}
	return e.Extract(item)
}

// Extract concatenates the title, cleaned body, block text, field text and
// excerpt of item, separated by blank lines.
func (e *Extractor) Extract(item *models.ContentItem) string {
	if item == nil {
		return ""
	}
	var sections []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}

	add(utils.CollapseWhitespace(DecodeEntities(item.Title)))
	add(CleanHTML(item.Body))
	for _, b := range item.Blocks {
		add(BlockText(b))
	}
	var fields []string
	for _, f := range item.Fields {
		if text := FieldText(f); text != "" {
			fields = append(fields, text)
		}
	}
	add(strings.Join(fields, "\n"))
	add(CleanHTML(item.Excerpt))

	return DecodeEntities(strings.Join(sections, sectionSeparator))
}

// urlEntities are the escapes permalinks pick up from HTML attribute encoding.
// Lenient entity decoding would turn query strings like "&notify=1" into text.
var urlEntities = strings.NewReplacer("&amp;", "&", "&#038;", "&", "&#38;", "&")

// DecodeURL undoes attribute escaping of ampersands in a permalink.
func DecodeURL(u string) string {
	return urlEntities.Replace(u)
}

// Document builds a retrieval candidate for item with the given baseline score.
// Items without a manual excerpt get the first words of their cleaned body.
func (e *Extractor) Document(item *models.ContentItem, score float64) *models.ContentDocument {
	excerpt := CleanHTML(item.Excerpt)
	if excerpt == "" {
		excerpt = utils.TrimWords(CleanHTML(item.Body), autoExcerptWords)
	}
	return &models.ContentDocument{
		ID:      item.ID,
		Title:   utils.CollapseWhitespace(DecodeEntities(item.Title)),
		Body:    e.Extract(item),
		Excerpt: excerpt,
		URL:     DecodeURL(item.URL),
		Type:    item.Type,
		Score:   score,
	}
}
