// Package render turns an approved set of summons sections into HTML and a printable form.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"rechtstreeks/internal/domain"
)

const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain; charset=utf-8"

	convertHTMLPath = "/forms/chromium/convert/html"
)

type Section struct {
	Key   domain.SectionKey
	Title string
	Text  string
}

type Document struct {
	Case        domain.Case
	SummonsID   string
	Version     int
	Sections    []Section
	GeneratedAt time.Time
}

type Output struct {
	HTML                 []byte
	Printable            []byte
	PrintableContentType string
	PrintableFilename    string
}

// Renderer produces HTML locally and delegates PDF conversion to an HTML-to-PDF service.
// Without a PDFURL the printable form is plain text.
type Renderer struct {
	PDFURL     string
	HTTPClient *http.Client
}

func NewRenderer(pdfURL string) *Renderer {
	return &Renderer{
		PDFURL:     strings.TrimRight(pdfURL, "/"),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SectionsInOrder pairs approved texts with catalog titles in canonical order.
func SectionsInOrder(sections []domain.Section) []Section {
	out := make([]Section, 0, len(sections))
	for _, sec := range domain.SortSections(sections) {
		text := ""
		if sec.GeneratedText != nil {
			text = strings.TrimSpace(*sec.GeneratedText)
		}
		out = append(out, Section{Key: sec.Key, Title: domain.SectionInfoFor(sec.Key).Title, Text: text})
	}
	return out
}

// Body concatenates section texts under their titles.
func Body(sections []Section) string {
	var b strings.Builder
	for i, sec := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(sec.Title))
		b.WriteString("\n\n")
		b.WriteString(sec.Text)
	}
	return b.String()
}

func (r *Renderer) Render(ctx context.Context, doc Document) (Output, error) {
	html, err := RenderHTML(doc)
	if err != nil {
		return Output{}, err
	}
	out := Output{HTML: html}

	if r.PDFURL == "" {
		out.Printable = []byte(RenderText(doc))
		out.PrintableContentType = ContentTypeText
		out.PrintableFilename = "dagvaarding.txt"
		return out, nil
	}

	pdf, err := r.convert(ctx, html)
	if err != nil {
		return Output{}, err
	}
	out.Printable = pdf
	out.PrintableContentType = ContentTypePDF
	out.PrintableFilename = "dagvaarding.pdf"
	return out, nil
}

func (r *Renderer) convert(ctx context.Context, html []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(html); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.PDFURL+convertHTMLPath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf renderer request failed: %w", err)
	}
	defer resp.Body.Close()

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pdf renderer returned %d: %s", resp.StatusCode, truncate(string(pdf), 200))
	}
	return pdf, nil
}

var htmlTemplate = template.Must(template.New("dagvaarding").Funcs(template.FuncMap{
	"paragraphs": paragraphs,
}).Parse(`<!DOCTYPE html>
<html lang="nl">
<head>
<meta charset="utf-8">
<title>Dagvaarding {{.Case.Title}}</title>
<style>
body { font-family: Georgia, serif; margin: 2.5cm; line-height: 1.5; }
h1 { text-align: center; letter-spacing: 0.1em; }
h2 { font-size: 1.1em; text-transform: uppercase; margin-top: 2em; }
.meta { margin-bottom: 2em; }
</style>
</head>
<body>
<h1>DAGVAARDING</h1>
<div class="meta">
<p>Eiser: {{.Case.ClaimantName}}</p>
<p>Gedaagde: {{.Case.DefendantName}}</p>
<p>Hoofdsom: {{.Amount}}</p>
<p>Datum: {{.Date}}</p>
</div>
{{range .Sections}}<section id="{{.Key}}">
<h2>{{.Title}}</h2>
{{range paragraphs .Text}}<p>{{.}}</p>
{{end}}</section>
{{end}}</body>
</html>
`))

type htmlView struct {
	Document
	Amount string
	Date   string
}

func RenderHTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, htmlView{Document: doc, Amount: FormatAmount(doc.Case.ClaimAmountCents), Date: FormatDate(doc.GeneratedAt)}); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

func RenderText(doc Document) string {
	var b strings.Builder
	b.WriteString("DAGVAARDING\n\n")
	fmt.Fprintf(&b, "Eiser: %s\nGedaagde: %s\nHoofdsom: %s\nDatum: %s\n\n", doc.Case.ClaimantName, doc.Case.DefendantName, FormatAmount(doc.Case.ClaimAmountCents), FormatDate(doc.GeneratedAt))
	b.WriteString(Body(doc.Sections))
	b.WriteString("\n")
	return b.String()
}

func FormatAmount(cents int64) string {
	p := message.NewPrinter(language.Dutch)
	return p.Sprintf("€ %.2f", float64(cents)/100)
}

var dutchMonths = [...]string{
	"januari", "februari", "maart", "april", "mei", "juni",
	"juli", "augustus", "september", "oktober", "november", "december",
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d %s %d", t.Day(), dutchMonths[t.Month()-1], t.Year())
}

func paragraphs(text string) []string {
	parts := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
