package ranking

import (
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Scorer assigns additive lexical scores to retrieval candidates.
type Scorer struct {
	analyzer *QueryAnalyzer
	config   *ScoringConfig
}

// NewScorer creates a Scorer. A nil config uses DefaultScoringConfig.
func NewScorer(analyzer *QueryAnalyzer, cfg *ScoringConfig) *Scorer {
	if analyzer == nil {
		analyzer = NewQueryAnalyzer()
	}
	if cfg == nil {
		cfg = DefaultScoringConfig()
	}
	return &Scorer{analyzer: analyzer, config: cfg}
}

// Score returns doc.Score plus the lexical evidence for query in doc.
func (s *Scorer) Score(doc *models.ContentDocument, qt *models.QueryTerms, query string) float64 {
	title := strings.ToLower(doc.Title)
	body := strings.ToLower(doc.Body)
	score := doc.Score

	for _, term := range AllTerms(qt) {
		if strings.Contains(title, term) {
			score += s.config.TitleTermScore
		}
		if strings.Contains(body, term) {
			score += s.config.BodyTermScore
		}
	}
	for _, phrase := range qt.Phrases {
		if strings.Contains(body, phrase) {
			score += s.config.BodyPhraseScore
		}
	}
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" && strings.Contains(title, q) {
		score += s.config.ExactTitleScore
	}
	return score
}

// ScoreAndSort returns scored copies of docs ordered by descending score.
// Equal scores keep their input order. The input documents are not modified.
func (s *Scorer) ScoreAndSort(docs []*models.ContentDocument, query string) []*models.ContentDocument {
	qt := s.analyzer.Analyze(query)
	sorted := make([]*models.ContentDocument, len(docs))
	for i, doc := range docs {
		scored := *doc
		scored.Score = s.Score(doc, qt, query)
		sorted[i] = &scored
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted
}
