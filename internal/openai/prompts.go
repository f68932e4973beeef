package openai

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"rechtstreeks/internal/domain"
)

const SECTION_SYSTEM = `Je bent een ervaren Nederlandse procesjurist die dagvaardingen voor de kantonrechter opstelt
voor eisers die zonder advocaat procederen.
Schrijf uitsluitend de tekst van het gevraagde onderdeel, in helder en formeel Nederlands.
Gebruik Markdown voor opsommingen. Geen kopje met de naam van het onderdeel, geen inleiding, geen afsluiting.
Verzin geen feiten: gebruik alleen wat in de zaakgegevens staat en markeer ontbrekende gegevens als [ONBEKEND].`

const SECTION_USER_TEMPLATE = `Stel het onderdeel "{{SECTION_TITLE}}" van de dagvaarding op.

Instructies voor dit onderdeel:
{{INSTRUCTIONS}}

Zaakgegevens:
{{CASE_CONTEXT}}

Ingediende documenten:
{{DOCUMENTS}}

Reeds goedgekeurde onderdelen:
{{APPROVED_SECTIONS}}
{{REVISION_BLOCK}}
Geef alleen de tekst van dit onderdeel.`

const REVISION_TEMPLATE = `
De vorige versie van dit onderdeel is afgekeurd.

Vorige versie:
{{PREVIOUS_TEXT}}

Feedback van de gebruiker:
{{FEEDBACK}}

Verwerk de feedback in een volledig nieuwe versie.
`

func RenderTemplate(tpl string, vars map[string]string) string {
	rendered := tpl
	for k, v := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", v)
	}
	return rendered
}

// SectionPromptInput carries everything the section prompt is built from.
type SectionPromptInput struct {
	Section      domain.SectionKey
	Context      domain.GenerationContext
	PreviousText string
	Feedback     *string
}

func BuildSectionUserPrompt(in SectionPromptInput) string {
	info := domain.SectionInfoFor(in.Section)

	revision := ""
	if in.Feedback != nil {
		feedback := strings.TrimSpace(*in.Feedback)
		if feedback == "" {
			feedback = "(geen toelichting gegeven; verbeter de tekst op eigen inzicht)"
		}
		revision = RenderTemplate(REVISION_TEMPLATE, map[string]string{
			"PREVIOUS_TEXT": orDash(in.PreviousText),
			"FEEDBACK":      feedback,
		})
	}

	return RenderTemplate(SECTION_USER_TEMPLATE, map[string]string{
		"SECTION_TITLE":     info.Title,
		"INSTRUCTIONS":      strings.TrimSpace(info.Instructions),
		"CASE_CONTEXT":      formatCaseContext(in.Context.Case),
		"DOCUMENTS":         formatList(in.Context.Documents),
		"APPROVED_SECTIONS": formatApproved(in.Context.ApprovedSections),
		"REVISION_BLOCK":    revision,
	})
}

func formatCaseContext(c domain.Case) string {
	p := message.NewPrinter(language.Dutch)
	lines := []string{
		"Zaak: " + orDash(c.Title),
		"Eiser: " + orDash(c.ClaimantName),
		"Gedaagde: " + orDash(c.DefendantName),
		p.Sprintf("Hoofdsom: EUR %.2f", float64(c.ClaimAmountCents)/100),
	}
	if strings.TrimSpace(c.Description) != "" {
		lines = append(lines, "Omschrijving: "+strings.TrimSpace(c.Description))
	}
	return strings.Join(lines, "\n")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatApproved(sections map[domain.SectionKey]string) string {
	if len(sections) == 0 {
		return "-"
	}
	keys := make([]domain.SectionKey, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return domain.SectionOrder(keys[i]) < domain.SectionOrder(keys[j])
	})
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "## %s\n%s\n\n", domain.SectionInfoFor(k).Title, strings.TrimSpace(sections[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
