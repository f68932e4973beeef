package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"rechtstreeks/internal/domain"
)

const (
	progressBarWidth = 20
	previewRunes     = 60
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func paint(s string, colorize bool, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if colorize {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func sectionStatusColor(status domain.SectionStatus) []color.Attribute {
	switch status {
	case domain.SectionApproved:
		return []color.Attribute{color.FgGreen}
	case domain.SectionReadyForReview:
		return []color.Attribute{color.FgCyan, color.Bold}
	case domain.SectionGenerating:
		return []color.Attribute{color.FgYellow}
	case domain.SectionRejected:
		return []color.Attribute{color.FgRed}
	default:
		return []color.Attribute{color.FgHiBlack}
	}
}

func renderSections(sections []domain.Section, colorize bool) string {
	rows := make([][]string, 0, len(sections))
	for i, sec := range domain.SortSections(sections) {
		info := domain.SectionInfoFor(sec.Key)
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			string(sec.Key),
			info.Title,
			paint(string(sec.Status), colorize, sectionStatusColor(sec.Status)...),
			fmt.Sprintf("%d", sec.Version),
			sectionNote(sec),
		})
	}
	return renderTable(
		[]string{"#", "Key", "Title", "Status", "Version", "Note"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func sectionNote(sec domain.Section) string {
	switch {
	case sec.LastError != nil && sec.Status != domain.SectionReadyForReview:
		return "error: " + preview(*sec.LastError)
	case sec.Status == domain.SectionRejected && sec.UserFeedback != nil:
		return "feedback: " + preview(*sec.UserFeedback)
	case sec.GeneratedText != nil:
		return preview(*sec.GeneratedText)
	}
	return ""
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes-1]) + "…"
}

func renderCases(cases []domain.CaseView, colorize bool) string {
	rows := make([][]string, 0, len(cases))
	for _, c := range cases {
		rows = append(rows, []string{
			c.ID,
			c.Title,
			c.Projection.Label,
			progressBar(c.Projection, colorize),
		})
	}
	return renderTable([]string{"ID", "Title", "Status", "Progress"}, rows, nil)
}

func renderCase(c domain.CaseView, colorize bool) string {
	p := c.Projection
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", paint(c.Title, colorize, color.Bold), paint(c.ID, colorize, color.FgHiBlack))
	fmt.Fprintf(&b, "Eiser:     %s\n", c.ClaimantName)
	fmt.Fprintf(&b, "Gedaagde:  %s\n", c.DefendantName)
	fmt.Fprintf(&b, "Status:    %s (stap %d van %d)\n", p.Label, p.Step, p.TotalSteps)
	fmt.Fprintf(&b, "Voortgang: %s\n", progressBar(p, colorize))
	if p.NextAction != "" {
		fmt.Fprintf(&b, "Volgende:  %s\n", paint(p.NextAction, colorize, color.FgCyan))
	}
	return b.String()
}

func progressBar(p domain.CaseProjection, colorize bool) string {
	filled := p.Progress * progressBarWidth / 100
	bar := paint(strings.Repeat("█", filled), colorize, color.FgGreen) + strings.Repeat("░", progressBarWidth-filled)
	return fmt.Sprintf("%s %3d%%", bar, p.Progress)
}
