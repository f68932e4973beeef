// Package client is a typed HTTP client for the case and summons API, plus the section poller
// that keeps a view in sync while generations are in flight.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rechtstreeks/internal/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response decoded from the API error body.
type APIError struct {
	StatusCode    int                  `json:"-"`
	Code          string               `json:"error"`
	Message       string               `json:"message"`
	CurrentStatus domain.SectionStatus `json:"current_status,omitempty"`
	Outstanding   []domain.SectionKey  `json:"outstanding,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Code)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case domain.ErrInvalidTransition:
		return e.Code == "invalid_transition"
	case domain.ErrIncompleteWorkflow:
		return e.Code == "incomplete_workflow"
	case domain.ErrGenerationFailure:
		return e.Code == "generation_failure"
	}
	return false
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type SectionList struct {
	SummonsID string               `json:"summons_id"`
	Status    domain.SummonsStatus `json:"status"`
	Sections  []domain.Section     `json:"sections"`
}

func (c *Client) CreateCase(ctx context.Context, req domain.CaseInput) (domain.CaseView, error) {
	var out domain.CaseView
	err := c.do(ctx, http.MethodPost, "/api/cases", req, &out)
	return out, err
}

func (c *Client) ListCases(ctx context.Context) ([]domain.CaseView, error) {
	var out struct {
		Cases []domain.CaseView `json:"cases"`
	}
	err := c.do(ctx, http.MethodGet, "/api/cases", nil, &out)
	return out.Cases, err
}

func (c *Client) GetCase(ctx context.Context, caseID string) (domain.CaseView, error) {
	var out domain.CaseView
	err := c.do(ctx, http.MethodGet, "/api/cases/"+url.PathEscape(caseID), nil, &out)
	return out, err
}

// UpdateCaseStatus moves the case forward; force also allows moving it back.
func (c *Client) UpdateCaseStatus(ctx context.Context, caseID string, status domain.CaseStatus, force bool) (domain.CaseView, error) {
	var out domain.CaseView
	err := c.do(ctx, http.MethodPost, "/api/cases/"+url.PathEscape(caseID)+"/status", map[string]any{
		"status": status,
		"force":  force,
	}, &out)
	return out, err
}

func (c *Client) UploadDocument(ctx context.Context, caseID, filename string, content []byte) (domain.DocumentRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return domain.DocumentRecord{}, err
	}
	if _, err := part.Write(content); err != nil {
		return domain.DocumentRecord{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.DocumentRecord{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/cases/"+url.PathEscape(caseID)+"/documents", &buf)
	if err != nil {
		return domain.DocumentRecord{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return domain.DocumentRecord{}, err
	}
	defer resp.Body.Close()
	if err := decodeError(resp); err != nil {
		return domain.DocumentRecord{}, err
	}
	var out domain.DocumentRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("decode upload response: %w", err)
	}
	return out, nil
}

func (c *Client) InitSummons(ctx context.Context, caseID string) (domain.Summons, error) {
	var out domain.Summons
	err := c.do(ctx, http.MethodPost, "/api/cases/"+url.PathEscape(caseID)+"/summons", nil, &out)
	return out, err
}

func (c *Client) GetSummons(ctx context.Context, caseID, summonsID string) (domain.Summons, error) {
	var out domain.Summons
	err := c.do(ctx, http.MethodGet, summonsPath(caseID, summonsID), nil, &out)
	return out, err
}

func (c *Client) ListSections(ctx context.Context, caseID, summonsID string) (SectionList, error) {
	var out SectionList
	err := c.do(ctx, http.MethodGet, summonsPath(caseID, summonsID)+"/sections", nil, &out)
	return out, err
}

func (c *Client) GenerateSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey, reopen bool) (domain.Section, error) {
	path := sectionPath(caseID, summonsID, key) + "/generate"
	if reopen {
		path += "?reopen=true"
	}
	var out domain.Section
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

func (c *Client) ApproveSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey) (domain.Section, error) {
	var out domain.Section
	err := c.do(ctx, http.MethodPost, sectionPath(caseID, summonsID, key)+"/approve", nil, &out)
	return out, err
}

func (c *Client) RejectSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey, feedback string) (domain.Section, error) {
	var out domain.Section
	err := c.do(ctx, http.MethodPost, sectionPath(caseID, summonsID, key)+"/reject", map[string]string{"feedback": feedback}, &out)
	return out, err
}

func (c *Client) Assemble(ctx context.Context, caseID, summonsID string) (domain.AssemblyRecord, error) {
	var out domain.AssemblyRecord
	err := c.do(ctx, http.MethodPost, summonsPath(caseID, summonsID)+"/assemble", nil, &out)
	return out, err
}

// Download fetches the latest assembled output; kind is "pdf" or "html".
func (c *Client) Download(ctx context.Context, caseID, summonsID, kind string) ([]byte, string, error) {
	path := "/api/cases/" + url.PathEscape(caseID) + "/summons-v2/" + url.PathEscape(summonsID) + "/" + kind
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if err := decodeError(resp); err != nil {
		return nil, "", err
	}
	b, err := io.ReadAll(resp.Body)
	return b, resp.Header.Get("Content-Type"), err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := decodeError(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient().Do(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func decodeError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if len(b) > 0 && json.Unmarshal(b, apiErr) != nil {
		apiErr.Message = strings.TrimSpace(string(b))
	}
	if apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	}
	return apiErr
}

func summonsPath(caseID, summonsID string) string {
	return "/api/cases/" + url.PathEscape(caseID) + "/summons/" + url.PathEscape(summonsID)
}

func sectionPath(caseID, summonsID string, key domain.SectionKey) string {
	return summonsPath(caseID, summonsID) + "/sections/" + url.PathEscape(string(key))
}
