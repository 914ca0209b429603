// Package models defines core data structures for site content, queries, answers and cache entries.
package models

import "time"

// StatusPublish is the only content status visible to retrieval.
const StatusPublish = "publish"

// ContentItem is a piece of site content as held by the content store.
// Body is raw HTML; Blocks and Fields carry structured content stored alongside it.
type ContentItem struct {
	ID          string    `json:"id" db:"id"`
	Type        string    `json:"type" db:"type"`
	Status      string    `json:"status" db:"status"`
	Title       string    `json:"title" db:"title"`
	Body        string    `json:"body" db:"body"`
	Excerpt     string    `json:"excerpt,omitempty" db:"excerpt"`
	URL         string    `json:"url,omitempty" db:"url"`
	Blocks      []Block   `json:"blocks,omitempty" db:"blocks"`
	Fields      []Field   `json:"fields,omitempty" db:"fields"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	// Metadata holds import bookkeeping such as the source path of file-backed items.
	Metadata map[string]string `json:"metadata,omitempty" db:"metadata"`
}

// Block is one node of a structured block tree (editor blocks, layout sections, attachments).
type Block struct {
	Name         string                 `json:"name"`
	InnerHTML    string                 `json:"inner_html,omitempty"`
	InnerContent []string               `json:"inner_content,omitempty"`
	Attrs        map[string]interface{} `json:"attrs,omitempty"`
	InnerBlocks  []Block                `json:"inner_blocks,omitempty"`
}

// Field is a labelled custom field. Value may be a scalar, a list, a map or a
// list of maps (repeater rows).
type Field struct {
	Label string      `json:"label"`
	Type  string      `json:"type,omitempty"`
	Value interface{} `json:"value"`
}

// ContentDocument is a retrieval candidate built per query. Body is plain text.
type ContentDocument struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Excerpt string  `json:"excerpt,omitempty"`
	URL     string  `json:"url,omitempty"`
	Type    string  `json:"type"`
	Score   float64 `json:"score"`
}

// QueryTerms holds the key terms and phrases derived from a query.
type QueryTerms struct {
	Terms   []string `json:"terms"`
	Phrases []string `json:"phrases"`
}
