package domain

import (
	"strings"
	"unicode/utf8"
)

const MaxFeedbackLength = 4000

// ParseSectionKey accepts a canonical key in any case.
func ParseSectionKey(v string) (SectionKey, error) {
	key := SectionKey(strings.ToUpper(strings.TrimSpace(v)))
	if SectionOrder(key) < 0 {
		return "", NotFoundf("section %q", v)
	}
	return key, nil
}

// NormalizeFeedback trims reviewer feedback. Empty feedback is allowed.
func NormalizeFeedback(v string) (string, bool) {
	trimmed := strings.TrimSpace(v)
	if !utf8.ValidString(trimmed) || utf8.RuneCountInString(trimmed) > MaxFeedbackLength {
		return "", false
	}
	return trimmed, true
}

type CaseInput struct {
	Title            string `json:"title"`
	ClaimantName     string `json:"claimant_name"`
	DefendantName    string `json:"defendant_name"`
	ClaimAmountCents int64  `json:"claim_amount_cents"`
	Description      string `json:"description"`
}

// ValidateCaseInput returns the names of failed rules, empty when valid.
func ValidateCaseInput(in CaseInput) []string {
	failed := make([]string, 0)
	if strings.TrimSpace(in.Title) == "" {
		failed = append(failed, "case.title_required")
	}
	if strings.TrimSpace(in.ClaimantName) == "" {
		failed = append(failed, "case.claimant_required")
	}
	if strings.TrimSpace(in.DefendantName) == "" {
		failed = append(failed, "case.defendant_required")
	}
	if in.ClaimAmountCents < 0 {
		failed = append(failed, "case.claim_amount_non_negative")
	}
	return failed
}
