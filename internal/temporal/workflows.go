package temporal

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"rechtstreeks/internal/domain"
)

const SectionGenerationWorkflowName = "SectionGenerationWorkflow"

type WorkflowInput struct {
	SummonsID      string
	CaseID         string
	SectionKey     domain.SectionKey
	GenerationID   string
	Feedback       *string
	TimeoutSeconds int
}

type WorkflowResult struct {
	SummonsID    string
	SectionKey   domain.SectionKey
	GenerationID string
	Status       domain.SectionStatus
	// Applied is false when the section had already moved on (reaped or superseded).
	Applied bool
	Reason  string
}

// SectionGenerationWorkflow runs one generation for one section and records the outcome.
// Generation errors never fail the workflow; they revert the section instead.
func SectionGenerationWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	result := WorkflowResult{
		SummonsID:    input.SummonsID,
		SectionKey:   input.SectionKey,
		GenerationID: input.GenerationID,
	}

	genCtx := generationContext(ctx, time.Duration(input.TimeoutSeconds)*time.Second)
	completeCtx := mustActivityContext(ctx, ActivityPolicyCompleteGeneration)
	failCtx := mustActivityContext(ctx, ActivityPolicyFailGeneration)

	var generated GenerateSectionOutput
	genErr := workflow.ExecuteActivity(genCtx, (*Activities).GenerateSectionTextActivity, GenerateSectionInput{
		SummonsID:    input.SummonsID,
		CaseID:       input.CaseID,
		SectionKey:   input.SectionKey,
		GenerationID: input.GenerationID,
		Feedback:     input.Feedback,
	}).Get(ctx, &generated)

	if genErr != nil {
		reason := failureReason(genErr)
		logger.Warn("section generation failed", "summons_id", input.SummonsID, "section_key", input.SectionKey, "reason", reason)

		var out RecordOutcomeOutput
		if err := workflow.ExecuteActivity(failCtx, (*Activities).FailGenerationActivity, FailGenerationInput{
			SummonsID:    input.SummonsID,
			SectionKey:   input.SectionKey,
			GenerationID: input.GenerationID,
			Reason:       reason,
		}).Get(ctx, &out); err != nil {
			return result, err
		}
		result.Status = out.Status
		result.Applied = out.Applied
		result.Reason = reason
		return result, nil
	}

	var out RecordOutcomeOutput
	if err := workflow.ExecuteActivity(completeCtx, (*Activities).CompleteGenerationActivity, CompleteGenerationInput{
		SummonsID:    input.SummonsID,
		SectionKey:   input.SectionKey,
		GenerationID: input.GenerationID,
		Text:         generated.Text,
	}).Get(ctx, &out); err != nil {
		return result, err
	}
	result.Status = out.Status
	result.Applied = out.Applied
	return result, nil
}

func failureReason(err error) string {
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "generation timed out"
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
