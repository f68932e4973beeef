package domain

import "math"

// TotalSteps is the number of steps shown in the case timeline.
const TotalSteps = 9

// CaseStatusInfo is the single status-to-metadata table shared by API and CLI.
type CaseStatusInfo struct {
	Status      CaseStatus `json:"status"`
	Step        int        `json:"step"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
}

// SERVED and SUMMONS_DRAFTED share step 6.
var caseStatusTable = []CaseStatusInfo{
	{CaseNewIntake, 1, "Intake", "Vul de gegevens van je zaak in."},
	{CaseDocsUploaded, 2, "Documenten geüpload", "Je documenten zijn ontvangen."},
	{CaseAnalyzed, 3, "Geanalyseerd", "De juridische analyse is klaar."},
	{CaseLetterDrafted, 4, "Sommatiebrief opgesteld", "De sommatiebrief is opgesteld."},
	{CaseBailiffOrdered, 5, "Deurwaarder ingeschakeld", "De deurwaarder is ingeschakeld."},
	{CaseServed, 6, "Betekend", "De dagvaarding is betekend."},
	{CaseSummonsDrafted, 6, "Dagvaarding opgesteld", "De dagvaarding is samengesteld."},
	{CaseFiled, 7, "Ingediend", "De zaak is aangebracht bij de kantonrechter."},
	{CaseProceedingsOngoing, 8, "Procedure loopt", "De procedure bij de rechtbank loopt."},
	{CaseJudgment, 9, "Vonnis", "De kantonrechter heeft vonnis gewezen."},
}

// CaseStatusTable returns a copy of the ordered status metadata table.
func CaseStatusTable() []CaseStatusInfo {
	out := make([]CaseStatusInfo, len(caseStatusTable))
	copy(out, caseStatusTable)
	return out
}

// StatusInfo looks up metadata; unknown or legacy values fall back to the first step.
func StatusInfo(status CaseStatus) CaseStatusInfo {
	for _, info := range caseStatusTable {
		if info.Status == status {
			return info
		}
	}
	fallback := caseStatusTable[0]
	fallback.Status = status
	return fallback
}

// KnownCaseStatus reports whether status is part of the enum.
func KnownCaseStatus(status CaseStatus) bool {
	for _, info := range caseStatusTable {
		if info.Status == status {
			return true
		}
	}
	return false
}

func StepNumber(status CaseStatus) int {
	return StatusInfo(status).Step
}

// Progress maps a status onto 0..100; JUDGMENT is 100.
func Progress(status CaseStatus) int {
	return int(math.Round(float64(StepNumber(status)) * 100 / TotalSteps))
}

type CaseProjection struct {
	Status          CaseStatus `json:"status"`
	Step            int        `json:"step"`
	TotalSteps      int        `json:"total_steps"`
	Progress        int        `json:"progress"`
	Label           string     `json:"label"`
	Description     string     `json:"description"`
	CanAnalyze      bool       `json:"can_analyze"`
	CanDraftLetter  bool       `json:"can_draft_letter"`
	CanDraftSummons bool       `json:"can_draft_summons"`
	NextAction      string     `json:"next_action,omitempty"`
}

// Project derives progress and UI gates from the status and sub-entity presence.
func Project(c Case) CaseProjection {
	info := StatusInfo(c.Status)
	p := CaseProjection{
		Status:      c.Status,
		Step:        info.Step,
		TotalSteps:  TotalSteps,
		Progress:    Progress(c.Status),
		Label:       info.Label,
		Description: info.Description,
	}
	p.CanAnalyze = c.DocumentCount > 0
	p.CanDraftLetter = c.HasAnalysis
	p.CanDraftSummons = c.LetterCount > 0 || info.Step >= StepNumber(CaseBailiffOrdered)

	switch {
	case info.Step >= StepNumber(CaseFiled):
	case c.DocumentCount == 0:
		p.NextAction = "Upload je documenten"
	case !c.HasAnalysis:
		p.NextAction = "Laat je zaak analyseren"
	case c.LetterCount == 0:
		p.NextAction = "Stel een sommatiebrief op"
	case c.SummonsCount == 0:
		p.NextAction = "Start de dagvaarding"
	case info.Step < StepNumber(CaseSummonsDrafted):
		p.NextAction = "Rond de dagvaarding af"
	default:
		p.NextAction = "Dien de dagvaarding in"
	}
	return p
}

// IsForwardMove reports whether moving from → to advances the timeline.
// Table order decides, so SERVED → SUMMONS_DRAFTED counts even though both are step 6.
func IsForwardMove(from, to CaseStatus) bool {
	return statusIndex(to) > statusIndex(from)
}

func statusIndex(status CaseStatus) int {
	for i, info := range caseStatusTable {
		if info.Status == status {
			return i
		}
	}
	return -1
}

// CaseView is a case together with its derived projection, as served to clients.
type CaseView struct {
	Case
	Projection CaseProjection `json:"projection"`
}

func ViewOf(c Case) CaseView {
	return CaseView{Case: c, Projection: Project(c)}
}
