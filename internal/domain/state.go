package domain

import "strings"

type CaseStatus string

const (
	CaseNewIntake          CaseStatus = "NEW_INTAKE"
	CaseDocsUploaded       CaseStatus = "DOCS_UPLOADED"
	CaseAnalyzed           CaseStatus = "ANALYZED"
	CaseLetterDrafted      CaseStatus = "LETTER_DRAFTED"
	CaseBailiffOrdered     CaseStatus = "BAILIFF_ORDERED"
	CaseServed             CaseStatus = "SERVED"
	CaseSummonsDrafted     CaseStatus = "SUMMONS_DRAFTED"
	CaseFiled              CaseStatus = "FILED"
	CaseProceedingsOngoing CaseStatus = "PROCEEDINGS_ONGOING"
	CaseJudgment           CaseStatus = "JUDGMENT"
)

type DocumentStatus string

const (
	DocumentReceived DocumentStatus = "RECEIVED"
	DocumentStored   DocumentStatus = "STORED"
)

type SectionStatus string

const (
	SectionPending        SectionStatus = "pending"
	SectionGenerating     SectionStatus = "generating"
	SectionReadyForReview SectionStatus = "ready_for_review"
	SectionApproved       SectionStatus = "approved"
	SectionRejected       SectionStatus = "rejected"
)

// Alias labels used by the general-section editor. They name the same states.
const (
	sectionAliasDraft        = "draft"
	sectionAliasNeedsChanges = "needs_changes"
)

type SectionCommand string

const (
	CommandGenerate SectionCommand = "generate"
	CommandReopen   SectionCommand = "reopen"
	CommandComplete SectionCommand = "complete"
	CommandFail     SectionCommand = "fail"
	CommandApprove  SectionCommand = "approve"
	CommandReject   SectionCommand = "reject"
)

// sectionTransitions lists, per command, the states it may be issued from.
// complete and fail leave generating; their target for fail is the stored prior status.
var sectionTransitions = map[SectionCommand]struct {
	from []SectionStatus
	to   SectionStatus
}{
	CommandGenerate: {from: []SectionStatus{SectionPending, SectionRejected}, to: SectionGenerating},
	CommandReopen:   {from: []SectionStatus{SectionPending, SectionRejected, SectionApproved}, to: SectionGenerating},
	CommandComplete: {from: []SectionStatus{SectionGenerating}, to: SectionReadyForReview},
	CommandFail:     {from: []SectionStatus{SectionGenerating}},
	CommandApprove:  {from: []SectionStatus{SectionReadyForReview}, to: SectionApproved},
	CommandReject:   {from: []SectionStatus{SectionReadyForReview}, to: SectionRejected},
}

// AllowedFrom returns the states a command may be issued from.
func AllowedFrom(cmd SectionCommand) []SectionStatus {
	t, ok := sectionTransitions[cmd]
	if !ok {
		return nil
	}
	out := make([]SectionStatus, len(t.from))
	copy(out, t.from)
	return out
}

// Transition computes the next state for cmd, or an InvalidTransitionError.
// For CommandFail the caller supplies the prior stable status to revert to.
func Transition(key SectionKey, current SectionStatus, cmd SectionCommand, prior SectionStatus) (SectionStatus, error) {
	t, ok := sectionTransitions[cmd]
	if !ok {
		return current, &InvalidTransitionError{SectionKey: key, Command: cmd, Current: current}
	}
	if !statusIn(current, t.from) {
		return current, &InvalidTransitionError{SectionKey: key, Command: cmd, Current: current}
	}
	if cmd == CommandFail {
		if prior == "" || prior == SectionGenerating {
			return SectionPending, nil
		}
		return prior, nil
	}
	return t.to, nil
}

// CanTransition reports whether cmd is allowed from current.
func CanTransition(current SectionStatus, cmd SectionCommand) bool {
	t, ok := sectionTransitions[cmd]
	return ok && statusIn(current, t.from)
}

func statusIn(s SectionStatus, set []SectionStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

var sectionStatusAliases = map[SectionStatus][]string{
	SectionReadyForReview: {sectionAliasDraft},
	SectionRejected:       {sectionAliasNeedsChanges},
}

// StoredStatuses expands canonical statuses with the alias labels that may still be stored for them.
func StoredStatuses(statuses []SectionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, string(st))
		out = append(out, sectionStatusAliases[st]...)
	}
	return out
}

// ParseSectionStatus accepts the canonical vocabulary and its aliases.
func ParseSectionStatus(v string) (SectionStatus, bool) {
	label := strings.ToLower(strings.TrimSpace(v))
	for _, st := range []SectionStatus{SectionPending, SectionGenerating, SectionReadyForReview, SectionApproved, SectionRejected} {
		if label == string(st) {
			return st, true
		}
		for _, alias := range sectionStatusAliases[st] {
			if label == alias {
				return st, true
			}
		}
	}
	return "", false
}
