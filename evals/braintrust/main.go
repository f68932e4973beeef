package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	braintrust "github.com/braintrustdata/braintrust-sdk-go"
	"github.com/braintrustdata/braintrust-sdk-go/eval"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	statusGenerating     = "generating"
	statusReadyForReview = "ready_for_review"
	unknownMarker        = "[ONBEKEND]"
)

type caseInput struct {
	Title            string `json:"title"`
	ClaimantName     string `json:"claimant_name"`
	DefendantName    string `json:"defendant_name"`
	ClaimAmountCents int64  `json:"claim_amount_cents"`
	Description      string `json:"description"`
}

type evalInput struct {
	Name       string    `json:"name"`
	SectionKey string    `json:"section_key"`
	Case       caseInput `json:"case"`
	// Feedback, when set, rejects the first draft and scores the revision.
	Feedback string `json:"feedback,omitempty"`
}

type evalOutput struct {
	CaseID      string   `json:"case_id,omitempty"`
	SummonsID   string   `json:"summons_id,omitempty"`
	Status      string   `json:"status,omitempty"`
	Text        string   `json:"text,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	MustContain []string `json:"must_contain,omitempty"`
	MustNotHave []string `json:"must_not_contain,omitempty"`
	MinRunes    int      `json:"min_runes,omitempty"`
	MaxRunes    int      `json:"max_runes,omitempty"`
	MaxUnknowns int      `json:"max_unknowns,omitempty"`
	Revised     bool     `json:"revised,omitempty"`
}

type rawCase struct {
	Input    evalInput  `json:"input"`
	Expected evalOutput `json:"expected"`
}

type config struct {
	APIURL         string
	APIToken       string
	CasesPath      string
	Project        string
	Experiment     string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	Parallelism    int
}

type evalRunner struct {
	cfg    config
	client *http.Client
}

type section struct {
	Key           string  `json:"section_key"`
	Status        string  `json:"status"`
	GeneratedText *string `json:"generated_text"`
	LastError     *string `json:"last_error"`
}

func main() {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		fail(err)
	}

	if strings.TrimSpace(os.Getenv("BRAINTRUST_API_KEY")) == "" {
		fail(errors.New("BRAINTRUST_API_KEY is required"))
	}

	cases, err := loadCases(cfg.CasesPath)
	if err != nil {
		fail(err)
	}

	runner := &evalRunner{cfg: cfg, client: &http.Client{}}
	if err := runner.healthCheck(ctx); err != nil {
		fail(err)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	bt, err := braintrust.New(
		tp,
		braintrust.WithProject(cfg.Project),
		braintrust.WithBlockingLogin(true),
	)
	if err != nil {
		fail(fmt.Errorf("failed to initialize Braintrust: %w", err))
	}

	evaluator := braintrust.NewEvaluator[evalInput, evalOutput](bt)

	result, err := evaluator.Run(ctx, eval.Opts[evalInput, evalOutput]{
		Experiment: cfg.Experiment,
		Dataset:    eval.NewDataset(cases),
		Task:       eval.T(runner.runCase),
		Scorers: []eval.Scorer[evalInput, evalOutput]{
			eval.NewScorer("ready_for_review", scoreStatus),
			eval.NewScorer("required_phrases", scoreRequiredPhrases),
			eval.NewScorer("forbidden_phrases", scoreForbiddenPhrases),
			eval.NewScorer("length_bounds", scoreLength),
			eval.NewScorer("unknown_markers", scoreUnknownMarkers),
			eval.NewScorer("no_heading", scoreNoHeading),
		},
		Tags: []string{"summons", "section-generation", "workflow-api"},
		Metadata: map[string]any{
			"service":          "rechtstreeks",
			"api_url":          cfg.APIURL,
			"poll_timeout_sec": int(cfg.PollTimeout.Seconds()),
		},
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		fail(fmt.Errorf("eval run failed: %w", err))
	}

	if runErr := result.Error(); runErr != nil {
		fail(fmt.Errorf("eval completed with errors: %w", runErr))
	}

	if link, err := result.Permalink(); err == nil && link != "" {
		fmt.Println("Braintrust report:", link)
	}

	fmt.Println(result.String())
}

func loadConfig() (config, error) {
	cfg := config{
		APIURL:         getenv("EVAL_API_URL", "http://localhost:8080"),
		APIToken:       getenv("EVAL_API_TOKEN", ""),
		CasesPath:      getenv("EVAL_CASES_PATH", "cases.json"),
		Project:        getenv("BRAINTRUST_PROJECT", "rechtstreeks"),
		Experiment:     getenv("EVAL_EXPERIMENT", "summons-section-generation-eval"),
		PollInterval:   time.Duration(getenvInt("EVAL_POLL_INTERVAL_SEC", 2)) * time.Second,
		PollTimeout:    time.Duration(getenvInt("EVAL_POLL_TIMEOUT_SEC", 300)) * time.Second,
		RequestTimeout: time.Duration(getenvInt("EVAL_REQUEST_TIMEOUT_SEC", 20)) * time.Second,
		Parallelism:    getenvInt("EVAL_PARALLELISM", 1),
	}

	if cfg.APIToken == "" {
		return config{}, errors.New("EVAL_API_TOKEN is required")
	}
	if cfg.PollInterval <= 0 {
		return config{}, errors.New("EVAL_POLL_INTERVAL_SEC must be > 0")
	}
	if cfg.PollTimeout <= 0 {
		return config{}, errors.New("EVAL_POLL_TIMEOUT_SEC must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return config{}, errors.New("EVAL_REQUEST_TIMEOUT_SEC must be > 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return cfg, nil
}

func loadCases(path string) ([]eval.Case[evalInput, evalOutput], error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases file %s: %w", resolved, err)
	}

	var raw []rawCase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cases file %s: %w", resolved, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cases file is empty: %s", resolved)
	}

	cases := make([]eval.Case[evalInput, evalOutput], 0, len(raw))
	for _, row := range raw {
		cases = append(cases, eval.Case[evalInput, evalOutput]{
			Input:    row.Input,
			Expected: row.Expected,
			Metadata: map[string]any{"name": row.Input.Name, "section_key": row.Input.SectionKey, "revision": row.Input.Feedback != ""},
		})
	}
	return cases, nil
}

// runCase opens a fresh case and summons, generates one section and, for revision cases,
// rejects the first draft with feedback before generating again.
func (r *evalRunner) runCase(ctx context.Context, input evalInput) (evalOutput, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := r.doJSON(ctx, http.MethodPost, "/api/cases", input.Case, &created); err != nil {
		return evalOutput{}, fmt.Errorf("create case: %w", err)
	}
	var summons struct {
		ID string `json:"id"`
	}
	if err := r.doJSON(ctx, http.MethodPost, "/api/cases/"+url.PathEscape(created.ID)+"/summons", nil, &summons); err != nil {
		return evalOutput{}, fmt.Errorf("init summons: %w", err)
	}
	out := evalOutput{CaseID: created.ID, SummonsID: summons.ID}

	sec, err := r.generate(ctx, created.ID, summons.ID, input.SectionKey)
	if err != nil {
		return evalOutput{}, err
	}
	if input.Feedback != "" && sec.Status == statusReadyForReview {
		path := sectionPath(created.ID, summons.ID, input.SectionKey) + "/reject"
		if err := r.doJSON(ctx, http.MethodPost, path, map[string]string{"feedback": input.Feedback}, nil); err != nil {
			return evalOutput{}, fmt.Errorf("reject: %w", err)
		}
		if sec, err = r.generate(ctx, created.ID, summons.ID, input.SectionKey); err != nil {
			return evalOutput{}, err
		}
		out.Revised = true
	}

	out.Status = sec.Status
	if sec.GeneratedText != nil {
		out.Text = *sec.GeneratedText
	}
	if sec.LastError != nil {
		out.LastError = *sec.LastError
	}
	return out, nil
}

func (r *evalRunner) generate(ctx context.Context, caseID, summonsID, key string) (section, error) {
	if err := r.doJSON(ctx, http.MethodPost, sectionPath(caseID, summonsID, key)+"/generate", nil, nil); err != nil {
		return section{}, fmt.Errorf("generate %s: %w", key, err)
	}

	deadline := time.Now().Add(r.cfg.PollTimeout)
	for {
		var list struct {
			Sections []section `json:"sections"`
		}
		path := "/api/cases/" + url.PathEscape(caseID) + "/summons/" + url.PathEscape(summonsID) + "/sections"
		if err := r.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
			return section{}, err
		}
		for _, sec := range list.Sections {
			if strings.EqualFold(sec.Key, key) && sec.Status != statusGenerating {
				return sec, nil
			}
		}

		if time.Now().After(deadline) {
			return section{}, fmt.Errorf("timed out waiting for section %s of summons %s", key, summonsID)
		}
		select {
		case <-ctx.Done():
			return section{}, ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func sectionPath(caseID, summonsID, key string) string {
	return "/api/cases/" + url.PathEscape(caseID) + "/summons/" + url.PathEscape(summonsID) + "/sections/" + url.PathEscape(strings.ToUpper(key))
}

func (r *evalRunner) healthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := r.doJSON(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if strings.ToLower(resp.Status) != "ok" {
		return fmt.Errorf("health check returned non-ok status: %s", resp.Status)
	}
	return nil
}

func (r *evalRunner) doJSON(ctx context.Context, method, path string, in any, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(r.cfg.APIURL, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode failed: %w (payload=%s)", err, string(payload))
		}
	}
	return nil
}

func scoreStatus(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	if tr.Output.Status == statusReadyForReview && strings.TrimSpace(tr.Output.Text) != "" {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

func scoreRequiredPhrases(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	phrases := tr.Expected.MustContain
	if len(phrases) == 0 {
		return eval.S(1), nil
	}
	text := normalizeText(tr.Output.Text)
	matched := 0
	for _, p := range phrases {
		if strings.Contains(text, normalizeText(p)) {
			matched++
		}
	}
	return eval.S(float64(matched) / float64(len(phrases))), nil
}

func scoreForbiddenPhrases(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	text := normalizeText(tr.Output.Text)
	for _, p := range tr.Expected.MustNotHave {
		if strings.Contains(text, normalizeText(p)) {
			return eval.S(0), nil
		}
	}
	return eval.S(1), nil
}

func scoreLength(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	n := utf8.RuneCountInString(strings.TrimSpace(tr.Output.Text))
	if n == 0 {
		return eval.S(0), nil
	}
	if tr.Expected.MinRunes > 0 && n < tr.Expected.MinRunes {
		return eval.S(0), nil
	}
	if tr.Expected.MaxRunes > 0 && n > tr.Expected.MaxRunes {
		return eval.S(0), nil
	}
	return eval.S(1), nil
}

// Unknown markers are expected when the case lacks facts, but too many mean the prompt
// context was not used.
func scoreUnknownMarkers(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	limit := tr.Expected.MaxUnknowns
	if limit <= 0 {
		limit = 3
	}
	if strings.Count(tr.Output.Text, unknownMarker) <= limit {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

func scoreNoHeading(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	first := strings.TrimSpace(strings.SplitN(strings.TrimSpace(tr.Output.Text), "\n", 2)[0])
	if strings.HasPrefix(first, "#") || strings.EqualFold(strings.Trim(first, "*: "), tr.Input.SectionKey) {
		return eval.S(0), nil
	}
	return eval.S(1), nil
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("path not found: %s", path)
	}

	for _, c := range []string{path, filepath.Join("..", "..", path)} {
		absPath, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return absPath, nil
		}
	}
	return "", fmt.Errorf("path not found: %s", path)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
		return fallback
	}
	return out
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
