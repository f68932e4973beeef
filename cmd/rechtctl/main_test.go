package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rechtstreeks/internal/domain"
)

type fakeAPI struct {
	sectionFetches atomic.Int32
	// generatingFetches is how many section reads still report FEITEN as generating.
	generatingFetches int32
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cases", func(w http.ResponseWriter, r *http.Request) {
		c := domain.Case{ID: "case-1", Title: "Onbetaalde factuur", Status: domain.CaseLetterDrafted, DocumentCount: 2, HasAnalysis: true, LetterCount: 1}
		respond(w, http.StatusOK, map[string]any{"cases": []domain.CaseView{domain.ViewOf(c)}})
	})
	mux.HandleFunc("GET /api/cases/case-1/summons/sum-1/sections", func(w http.ResponseWriter, r *http.Request) {
		n := f.sectionFetches.Add(1)
		status := domain.SectionReadyForReview
		if n <= f.generatingFetches {
			status = domain.SectionGenerating
		}
		sections := make([]domain.Section, 0, len(domain.CanonicalSectionKeys))
		for i := len(domain.CanonicalSectionKeys) - 1; i >= 0; i-- {
			key := domain.CanonicalSectionKeys[i]
			sec := domain.Section{SummonsID: "sum-1", Key: key, Status: domain.SectionPending, Version: 1}
			if key == domain.SectionFeiten {
				sec.Status = status
			}
			sections = append(sections, sec)
		}
		respond(w, http.StatusOK, map[string]any{"summons_id": "sum-1", "status": domain.SummonsInProgress, "sections": sections})
	})
	mux.HandleFunc("POST /api/cases/case-1/summons/sum-1/sections/FEITEN/approve", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusConflict, map[string]any{
			"error":          "invalid_transition",
			"message":        "cannot approve section FEITEN in status approved",
			"section_key":    "FEITEN",
			"current_status": "approved",
		})
	})
	mux.HandleFunc("POST /api/cases/case-1/summons/sum-1/assemble", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusConflict, map[string]any{
			"error":       "incomplete_workflow",
			"message":     "summons sum-1 has unapproved sections",
			"outstanding": []string{"VERWEER", "PETITUM"},
		})
	})
	return mux
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func runCLI(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", serverURL, "--token", "tok-1"}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCasesListShowsProgress(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{}).handler())
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "cases", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Onbetaalde factuur")
	require.Contains(t, out, "Sommatiebrief opgesteld")
	require.Contains(t, out, " 44%")
}

func TestSectionsListedInCanonicalOrder(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{}).handler())
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "sections", "case-1", "sum-1")
	require.NoError(t, err)
	first := strings.Index(out, "VORDERINGEN")
	last := strings.Index(out, "PRODUCTIES_SAMENVATTING")
	require.True(t, first >= 0 && last > first, out)
	require.Contains(t, out, "ready_for_review")
}

func TestApproveExplainsCurrentStatus(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{}).handler())
	defer srv.Close()

	_, err := runCLI(t, srv.URL, "approve", "case-1", "sum-1", "feiten")
	require.Error(t, err)
	require.Contains(t, err.Error(), "section is approved")
}

func TestAssembleListsOutstandingSections(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{}).handler())
	defer srv.Close()

	_, err := runCLI(t, srv.URL, "assemble", "case-1", "sum-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "outstanding: VERWEER, PETITUM")
}

func TestUnknownSectionArgument(t *testing.T) {
	_, err := runCLI(t, "http://127.0.0.1:1", "approve", "case-1", "sum-1", "inleiding")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown section")
}

func TestMissingTokenIsReported(t *testing.T) {
	t.Setenv("RECHTSTREEKS_TOKEN", "")
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"cases", "list"})
	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "RECHTSTREEKS_TOKEN")
}

func TestWatchReturnsOnceGenerationSettles(t *testing.T) {
	api := &fakeAPI{generatingFetches: 2}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	start := time.Now()
	out, err := runCLI(t, srv.URL, "--interval", "20ms", "watch", "case-1", "sum-1")
	require.NoError(t, err)
	require.Contains(t, out, "generating")
	require.Contains(t, out, "ready_for_review")
	require.GreaterOrEqual(t, api.sectionFetches.Load(), int32(3))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWatchIntervalFromEnvironment(t *testing.T) {
	t.Setenv("RECHTSTREEKS_POLL_INTERVAL_MS", "20")
	api := &fakeAPI{generatingFetches: 2}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	start := time.Now()
	_, err := runCLI(t, srv.URL, "watch", "case-1", "sum-1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, api.sectionFetches.Load(), int32(3))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWatchRejectsInvalidIntervalEnvironment(t *testing.T) {
	t.Setenv("RECHTSTREEKS_POLL_INTERVAL_MS", "soon")
	srv := httptest.NewServer((&fakeAPI{}).handler())
	defer srv.Close()

	_, err := runCLI(t, srv.URL, "watch", "case-1", "sum-1")
	require.ErrorContains(t, err, "RECHTSTREEKS_POLL_INTERVAL_MS")
}

func TestWatchFailsWhenFirstFetchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": "missing or invalid bearer token"})
	}))
	defer srv.Close()

	_, err := runCLI(t, srv.URL, "watch", "case-1", "sum-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unauthorized")
}
