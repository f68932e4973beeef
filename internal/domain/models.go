package domain

import "time"

type SectionKey string

const (
	SectionVorderingen            SectionKey = "VORDERINGEN"
	SectionFeiten                 SectionKey = "FEITEN"
	SectionRechtsgronden          SectionKey = "RECHTSGRONDEN"
	SectionVerloop                SectionKey = "VERLOOP"
	SectionVerweer                SectionKey = "VERWEER"
	SectionPetitum                SectionKey = "PETITUM"
	SectionProductiesSamenvatting SectionKey = "PRODUCTIES_SAMENVATTING"
)

// CanonicalSectionKeys is the fixed order in which sections are listed and assembled.
var CanonicalSectionKeys = []SectionKey{
	SectionVorderingen,
	SectionFeiten,
	SectionRechtsgronden,
	SectionVerloop,
	SectionVerweer,
	SectionPetitum,
	SectionProductiesSamenvatting,
}

// SectionOrder returns the zero-based canonical position of key, or -1.
func SectionOrder(key SectionKey) int {
	for i, k := range CanonicalSectionKeys {
		if k == key {
			return i
		}
	}
	return -1
}

type Case struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	Title            string     `json:"title"`
	ClaimantName     string     `json:"claimant_name"`
	DefendantName    string     `json:"defendant_name"`
	ClaimAmountCents int64      `json:"claim_amount_cents"`
	Description      string     `json:"description,omitempty"`
	Status           CaseStatus `json:"status"`
	DocumentCount    int        `json:"document_count"`
	LetterCount      int        `json:"letter_count"`
	SummonsCount     int        `json:"summons_count"`
	HasAnalysis      bool       `json:"has_analysis"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type DocumentRecord struct {
	ID          string         `json:"id"`
	CaseID      string         `json:"case_id"`
	Filename    string         `json:"filename"`
	ObjectKey   string         `json:"object_key"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	Status      DocumentStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Section struct {
	SummonsID           string        `json:"summons_id"`
	Key                 SectionKey    `json:"section_key"`
	Status              SectionStatus `json:"status"`
	GeneratedText       *string       `json:"generated_text,omitempty"`
	UserFeedback        *string       `json:"user_feedback,omitempty"`
	PriorStatus         SectionStatus `json:"-"`
	GenerationID        string        `json:"generation_id,omitempty"`
	GenerationStartedAt *time.Time    `json:"generation_started_at,omitempty"`
	LastError           *string       `json:"last_error,omitempty"`
	Version             int64         `json:"version"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

type SummonsStatus string

const (
	SummonsInProgress SummonsStatus = "in_progress"
	SummonsComplete   SummonsStatus = "complete"
)

type Summons struct {
	ID             string          `json:"id"`
	CaseID         string          `json:"case_id"`
	Status         SummonsStatus   `json:"status"`
	Sections       []Section       `json:"sections"`
	LatestAssembly *AssemblyRecord `json:"latest_assembly,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AssemblyRecord points at one assembled version of a summons.
type AssemblyRecord struct {
	SummonsID            string               `json:"summons_id"`
	Version              int                  `json:"version"`
	Body                 string               `json:"body"`
	HTMLKey              string               `json:"html_key"`
	PrintableKey         string               `json:"printable_key"`
	PrintableContentType string               `json:"printable_content_type"`
	SectionVersions      map[SectionKey]int64 `json:"section_versions"`
	CreatedAt            time.Time            `json:"created_at"`
}

// GenerationContext is what the generation service sees for one section.
type GenerationContext struct {
	Case             Case                  `json:"case"`
	Documents        []string              `json:"documents"`
	ApprovedSections map[SectionKey]string `json:"approved_sections,omitempty"`
}

// DeriveSummonsStatus reports complete only when every canonical section is approved.
func DeriveSummonsStatus(sections []Section) SummonsStatus {
	if len(OutstandingSections(sections)) == 0 {
		return SummonsComplete
	}
	return SummonsInProgress
}

// OutstandingSections lists canonical keys that are missing or not approved, in canonical order.
func OutstandingSections(sections []Section) []SectionKey {
	byKey := make(map[SectionKey]SectionStatus, len(sections))
	for _, s := range sections {
		byKey[s.Key] = s.Status
	}
	outstanding := make([]SectionKey, 0)
	for _, key := range CanonicalSectionKeys {
		if status, ok := byKey[key]; !ok || status != SectionApproved {
			outstanding = append(outstanding, key)
		}
	}
	return outstanding
}

// SortSections orders sections by canonical key position, never by creation time.
func SortSections(sections []Section) []Section {
	out := make([]Section, 0, len(sections))
	for _, key := range CanonicalSectionKeys {
		for _, s := range sections {
			if s.Key == key {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// AnyGenerating reports whether a generation is in flight for any section.
func AnyGenerating(sections []Section) bool {
	for _, s := range sections {
		if s.Status == SectionGenerating {
			return true
		}
	}
	return false
}

// SectionEvent announces a persisted section change to subscribers.
type SectionEvent struct {
	SummonsID  string        `json:"summons_id"`
	SectionKey SectionKey    `json:"section_key"`
	Status     SectionStatus `json:"status"`
	Version    int64         `json:"version"`
	// Resync marks a gap in the event feed; the receiver must re-read the summons.
	Resync bool `json:"resync,omitempty"`
}

func (s Section) Event() SectionEvent {
	return SectionEvent{SummonsID: s.SummonsID, SectionKey: s.Key, Status: s.Status, Version: s.Version}
}

// GenerationRequest asks the generation backend to produce text for one section.
type GenerationRequest struct {
	SummonsID    string     `json:"summons_id"`
	CaseID       string     `json:"case_id"`
	SectionKey   SectionKey `json:"section_key"`
	GenerationID string     `json:"generation_id"`
	Feedback     *string    `json:"feedback,omitempty"`
}
