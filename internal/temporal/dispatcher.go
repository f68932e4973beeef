package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"rechtstreeks/internal/domain"
)

// Dispatcher starts one SectionGenerationWorkflow per generation request.
type Dispatcher struct {
	Client           client.Client
	TaskQueue        string
	WorkflowIDPrefix string
	Timeout          time.Duration
}

func WorkflowID(prefix string, req domain.GenerationRequest) string {
	return fmt.Sprintf("%s-%s-%s-%s", prefix, req.SummonsID, req.SectionKey, req.GenerationID)
}

func (d *Dispatcher) StartGeneration(ctx context.Context, req domain.GenerationRequest) error {
	// Room for the two persistence activities after the ceiling.
	runTimeout := d.Timeout + 2*time.Minute
	_, err := d.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       WorkflowID(d.WorkflowIDPrefix, req),
		TaskQueue:                d.TaskQueue,
		WorkflowExecutionTimeout: runTimeout,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, SectionGenerationWorkflowName, WorkflowInput{
		SummonsID:      req.SummonsID,
		CaseID:         req.CaseID,
		SectionKey:     req.SectionKey,
		GenerationID:   req.GenerationID,
		Feedback:       req.Feedback,
		TimeoutSeconds: int(d.Timeout / time.Second),
	})
	if err != nil {
		// Same generation id means the request was already handed over.
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return nil
		}
		return fmt.Errorf("start generation workflow: %w", err)
	}
	return nil
}
