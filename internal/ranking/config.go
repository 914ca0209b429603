package ranking

// ScoringConfig holds the additive weights used to rank retrieval candidates.
type ScoringConfig struct {
	TitleTermScore  float64 `yaml:"title_term_score"`  // default: 10
	BodyTermScore   float64 `yaml:"body_term_score"`   // default: 2
	BodyPhraseScore float64 `yaml:"body_phrase_score"` // default: 15
	ExactTitleScore float64 `yaml:"exact_title_score"` // default: 50

	// Baseline weights for candidates found by the exhaustive scan.
	ScanTermWeight   float64 `yaml:"scan_term_weight"`   // default: 2
	ScanPhraseWeight float64 `yaml:"scan_phrase_weight"` // default: 5
}

// DefaultScoringConfig returns the default scoring weights.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		TitleTermScore:   10,
		BodyTermScore:    2,
		BodyPhraseScore:  15,
		ExactTitleScore:  50,
		ScanTermWeight:   2,
		ScanPhraseWeight: 5,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *ScoringConfig) ApplyDefaults() {
	defaults := DefaultScoringConfig()

	if c.TitleTermScore == 0 {
		c.TitleTermScore = defaults.TitleTermScore
	}
	if c.BodyTermScore == 0 {
		c.BodyTermScore = defaults.BodyTermScore
	}
	if c.BodyPhraseScore == 0 {
		c.BodyPhraseScore = defaults.BodyPhraseScore
	}
	if c.ExactTitleScore == 0 {
		c.ExactTitleScore = defaults.ExactTitleScore
	}
	if c.ScanTermWeight == 0 {
		c.ScanTermWeight = defaults.ScanTermWeight
	}
	if c.ScanPhraseWeight == 0 {
		c.ScanPhraseWeight = defaults.ScanPhraseWeight
	}
}
