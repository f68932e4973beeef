package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"

	"rechtstreeks/internal/domain"
	"rechtstreeks/internal/openai"
)

const (
	errTypeStaleGeneration = "StaleGeneration"
	errTypeUnusableOutput  = "UnusableModelOutput"
	errTypeModelRejected   = "ModelRequestRejected"

	// sectionMaxTokens leaves room for the longest section the normalizer accepts.
	sectionMaxTokens = 6000
)

type ActivityStore interface {
	GetCase(ctx context.Context, caseID string) (domain.Case, error)
	ListDocuments(ctx context.Context, caseID string) ([]domain.DocumentRecord, error)
	ListSections(ctx context.Context, summonsID string) ([]domain.Section, error)
	CompleteGeneration(ctx context.Context, summonsID string, key domain.SectionKey, generationID, text string) (domain.Section, error)
	FailGeneration(ctx context.Context, summonsID string, key domain.SectionKey, generationID, reason string) (domain.Section, error)
	InsertAudit(ctx context.Context, summonsID string, key domain.SectionKey, cmd domain.SectionCommand, status domain.SectionStatus, detail any) error
}

type Activities struct {
	Store          ActivityStore
	LLM            openai.Client
	OpenAIModel    string
	OpenAITimeout  time.Duration
	OpenAIMaxRetry int
}

type GenerateSectionInput struct {
	SummonsID    string
	CaseID       string
	SectionKey   domain.SectionKey
	GenerationID string
	Feedback     *string
}

type GenerateSectionOutput struct {
	Text string
}

type CompleteGenerationInput struct {
	SummonsID    string
	SectionKey   domain.SectionKey
	GenerationID string
	Text         string
}

type FailGenerationInput struct {
	SummonsID    string
	SectionKey   domain.SectionKey
	GenerationID string
	Reason       string
}

type RecordOutcomeOutput struct {
	Status  domain.SectionStatus
	Applied bool
}

func (a *Activities) GenerateSectionTextActivity(ctx context.Context, input GenerateSectionInput) (GenerateSectionOutput, error) {
	sections, err := a.Store.ListSections(ctx, input.SummonsID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return GenerateSectionOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypeStaleGeneration, err)
		}
		return GenerateSectionOutput{}, err
	}

	var target *domain.Section
	approved := make(map[domain.SectionKey]string)
	for i := range sections {
		sec := sections[i]
		if sec.Key == input.SectionKey {
			target = &sections[i]
			continue
		}
		if sec.Status == domain.SectionApproved && sec.GeneratedText != nil {
			approved[sec.Key] = *sec.GeneratedText
		}
	}
	if target == nil || target.Status != domain.SectionGenerating || target.GenerationID != input.GenerationID {
		return GenerateSectionOutput{}, temporal.NewNonRetryableApplicationError("generation superseded", errTypeStaleGeneration, nil)
	}

	c, err := a.Store.GetCase(ctx, input.CaseID)
	if err != nil {
		return GenerateSectionOutput{}, err
	}
	docs, err := a.Store.ListDocuments(ctx, input.CaseID)
	if err != nil {
		return GenerateSectionOutput{}, err
	}
	filenames := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Status == domain.DocumentStored {
			filenames = append(filenames, d.Filename)
		}
	}

	previous := ""
	if target.GeneratedText != nil {
		previous = *target.GeneratedText
	}
	prompt := openai.BuildSectionUserPrompt(openai.SectionPromptInput{
		Section: input.SectionKey,
		Context: domain.GenerationContext{
			Case:             c,
			Documents:        filenames,
			ApprovedSections: approved,
		},
		PreviousText: previous,
		Feedback:     input.Feedback,
	})

	// One extra model round when the first output is unusable.
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		raw, err := a.callOpenAIWithRetry(ctx, openai.SECTION_SYSTEM, prompt)
		if errors.Is(err, openai.ErrTruncated) {
			lastErr = err
			continue
		}
		if err != nil {
			if !openai.IsRetryable(err) {
				return GenerateSectionOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypeModelRejected, err)
			}
			return GenerateSectionOutput{}, err
		}
		text, err := openai.NormalizeSectionText(raw)
		if err == nil {
			return GenerateSectionOutput{Text: text}, nil
		}
		lastErr = err
	}
	return GenerateSectionOutput{}, temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("unusable model output: %v", lastErr), errTypeUnusableOutput, lastErr)
}

func (a *Activities) CompleteGenerationActivity(ctx context.Context, input CompleteGenerationInput) (RecordOutcomeOutput, error) {
	sec, err := a.Store.CompleteGeneration(ctx, input.SummonsID, input.SectionKey, input.GenerationID, input.Text)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return RecordOutcomeOutput{Status: sec.Status, Applied: false}, nil
	}
	if err != nil {
		return RecordOutcomeOutput{}, err
	}
	if err := a.Store.InsertAudit(ctx, input.SummonsID, input.SectionKey, domain.CommandComplete, sec.Status, map[string]any{
		"generation_id": input.GenerationID,
		"chars":         len(input.Text),
	}); err != nil {
		return RecordOutcomeOutput{}, err
	}
	return RecordOutcomeOutput{Status: sec.Status, Applied: true}, nil
}

func (a *Activities) FailGenerationActivity(ctx context.Context, input FailGenerationInput) (RecordOutcomeOutput, error) {
	sec, err := a.Store.FailGeneration(ctx, input.SummonsID, input.SectionKey, input.GenerationID, input.Reason)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return RecordOutcomeOutput{Status: sec.Status, Applied: false}, nil
	}
	if err != nil {
		return RecordOutcomeOutput{}, err
	}
	if err := a.Store.InsertAudit(ctx, input.SummonsID, input.SectionKey, domain.CommandFail, sec.Status, map[string]any{
		"generation_id": input.GenerationID,
		"reason":        input.Reason,
	}); err != nil {
		return RecordOutcomeOutput{}, err
	}
	return RecordOutcomeOutput{Status: sec.Status, Applied: true}, nil
}

func (a *Activities) callOpenAIWithRetry(ctx context.Context, systemPrompt string, userPrompt string) (string, error) {
	maxRetry := a.OpenAIMaxRetry
	if maxRetry <= 0 {
		maxRetry = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetry; attempt++ {
		out, err := a.LLM.Complete(ctx, openai.CompletionRequest{
			Model:        a.OpenAIModel,
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
			Temperature:  0.3,
			MaxTokens:    sectionMaxTokens,
			Timeout:      a.OpenAITimeout,
		})
		if err == nil {
			return out, nil
		}
		if errors.Is(err, openai.ErrTruncated) || !openai.IsRetryable(err) {
			return "", err
		}
		lastErr = err
		if attempt == maxRetry {
			break
		}
		delay := time.Duration(200*(1<<(attempt-1))) * time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", fmt.Errorf("openai retry exhausted: %w", lastErr)
}
