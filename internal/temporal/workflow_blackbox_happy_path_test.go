package temporal

import (
	"context"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"

	"rechtstreeks/internal/domain"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	generateIn []GenerateSectionInput
	completeIn []CompleteGenerationInput
	failCalls  int
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

var _ = Describe("SectionGenerationWorkflow blackbox happy path", func() {
	It("generates every section in canonical order and regenerates a rejected one with its feedback", func() {
		store := newFakeStore()
		store.seedSummons("case-bb-1", "sum-bb-1")
		llm := &stubLLM{}
		acts := newActivities(store, llm)

		for i, key := range domain.CanonicalSectionKeys {
			generationID := "gen-" + string(key)
			store.startGeneration("sum-bb-1", key, generationID)

			trace := &activityTrace{}
			env := newWorkflowEnv(acts)
			env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
				trace.recordStarted(info.ActivityType.Name)
				switch info.ActivityType.Name {
				case "GenerateSectionTextActivity":
					var in GenerateSectionInput
					_ = args.Get(&in)
					trace.mu.Lock()
					trace.generateIn = append(trace.generateIn, in)
					trace.mu.Unlock()
				case "CompleteGenerationActivity":
					var in CompleteGenerationInput
					_ = args.Get(&in)
					trace.mu.Lock()
					trace.completeIn = append(trace.completeIn, in)
					trace.mu.Unlock()
				case "FailGenerationActivity":
					trace.mu.Lock()
					trace.failCalls++
					trace.mu.Unlock()
				}
			})
			env.SetOnActivityCompletedListener(func(info *activity.Info, _ converter.EncodedValue, _ error) {
				trace.recordCompleted(info.ActivityType.Name)
			})

			By("running the generation workflow for " + string(key))
			env.ExecuteWorkflow(SectionGenerationWorkflow, WorkflowInput{
				SummonsID:      "sum-bb-1",
				CaseID:         "case-bb-1",
				SectionKey:     key,
				GenerationID:   generationID,
				TimeoutSeconds: 300,
			})
			Expect(env.IsWorkflowCompleted()).To(BeTrue())
			Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

			Expect(trace.startedOrder).To(Equal([]string{"GenerateSectionTextActivity", "CompleteGenerationActivity"}))
			Expect(trace.completedOrder).To(Equal(trace.startedOrder))
			Expect(trace.generateIn).To(HaveLen(1))
			Expect(trace.generateIn[0].SectionKey).To(Equal(key))
			Expect(trace.completeIn).To(HaveLen(1))
			Expect(trace.completeIn[0].GenerationID).To(Equal(generationID))
			Expect(trace.failCalls).To(BeZero())
			Expect(llm.callCount()).To(Equal(i + 1))
		}

		By("checking every section is ready for review")
		sections, err := store.ListSections(context.Background(), "sum-bb-1")
		Expect(err).ToNot(HaveOccurred())
		keys := make([]domain.SectionKey, 0, len(sections))
		for _, sec := range sections {
			Expect(sec.Status).To(Equal(domain.SectionReadyForReview))
			keys = append(keys, sec.Key)
		}
		Expect(keys).To(Equal(domain.CanonicalSectionKeys))

		By("rejecting FEITEN and regenerating with feedback")
		store.mu.Lock()
		feiten := store.sections["sum-bb-1"][domain.SectionFeiten]
		feedback := "noem de factuurdatum"
		feiten.Status = domain.SectionRejected
		feiten.UserFeedback = &feedback
		store.sections["sum-bb-1"][domain.SectionFeiten] = feiten
		store.mu.Unlock()
		store.startGeneration("sum-bb-1", domain.SectionFeiten, "gen-retry")

		llm.mu.Lock()
		llm.responses = make([]string, len(llm.calls)+1)
		llm.responses[len(llm.calls)] = "Op 1 maart 2025 is factuur 2025-001 verstuurd."
		llm.mu.Unlock()

		env := newWorkflowEnv(acts)
		env.ExecuteWorkflow(SectionGenerationWorkflow, WorkflowInput{
			SummonsID:      "sum-bb-1",
			CaseID:         "case-bb-1",
			SectionKey:     domain.SectionFeiten,
			GenerationID:   "gen-retry",
			Feedback:       &feedback,
			TimeoutSeconds: 300,
		})
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		llm.mu.Lock()
		lastPrompt := llm.calls[len(llm.calls)-1].UserPrompt
		llm.mu.Unlock()
		Expect(lastPrompt).To(ContainSubstring(feedback))
		Expect(strings.Count(lastPrompt, "Gegenereerde tekst.")).To(BeNumerically(">=", 1))

		regenerated := store.section("sum-bb-1", domain.SectionFeiten)
		Expect(regenerated.Status).To(Equal(domain.SectionReadyForReview))
		Expect(*regenerated.GeneratedText).To(Equal("Op 1 maart 2025 is factuur 2025-001 verstuurd."))
		Expect(*regenerated.UserFeedback).To(Equal(feedback))
	})
})
