package models

import "time"

// Outcome is the terminal state an ask request ended in.
type Outcome string

const (
	OutcomeCacheHit      Outcome = "cache_hit"
	OutcomeNoResults     Outcome = "no_results"
	OutcomeSynthesized   Outcome = "synthesized"
	OutcomeFallback      Outcome = "fallback"
	OutcomeNotConfigured Outcome = "not_configured"
)

// Source is a content item cited by an answer.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Type  string `json:"type,omitempty"`
}

// AskResponse is the answer to a question plus its sources.
type AskResponse struct {
	Query     string   `json:"query"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	Cached    bool     `json:"cached"`
	Outcome   Outcome  `json:"outcome"`
	QueryTime int64    `json:"took_ms"`
}

// CacheEntry is a cached answer keyed by the normalized query hash.
type CacheEntry struct {
	QueryHash string    `json:"query_hash" db:"query_hash"`
	QueryText string    `json:"query_text" db:"query_text"`
	Response  string    `json:"response" db:"response"`
	SourceIDs []string  `json:"source_ids" db:"source_ids"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	HitCount  int64     `json:"hit_count" db:"hit_count"`
}

// CacheStats summarizes the cache store.
type CacheStats struct {
	Backend   string    `json:"backend"`
	Entries   int64     `json:"entries"`
	TotalHits int64     `json:"total_hits"`
	Oldest    time.Time `json:"oldest,omitempty"`
}
