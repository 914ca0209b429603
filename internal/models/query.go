package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrQueryEmpty    = errors.New("query is empty")
	ErrQueryTooShort = errors.New("query too short")
	ErrQueryTooLong  = errors.New("query too long")
)

// ValidationError is a rejected query. Message is safe to show to end users.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Kind }

// AskRequest is the body of an ask call.
type AskRequest struct {
	Query string `json:"query"`
}

// Validate trims the query and checks it against the length bounds (in runes).
func (r *AskRequest) Validate(minLen, maxLen int) error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return &ValidationError{Kind: ErrQueryEmpty, Message: "Please enter a search query."}
	}
	n := utf8.RuneCountInString(r.Query)
	if minLen > 0 && n < minLen {
		return &ValidationError{
			Kind:    ErrQueryTooShort,
			Message: fmt.Sprintf("Query must be at least %d characters long.", minLen),
		}
	}
	if maxLen > 0 && n > maxLen {
		return &ValidationError{
			Kind:    ErrQueryTooLong,
			Message: fmt.Sprintf("Query must be no more than %d characters long.", maxLen),
		}
	}
	return nil
}
