//go:build system

package system_test

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	apiclient "rechtstreeks/internal/client"
	"rechtstreeks/internal/domain"
	appTemporal "rechtstreeks/internal/temporal"
)

var _ = Describe("System blackbox happy path", Ordered, func() {
	var repoRoot string
	var cfg systemTestConfig
	var api *apiclient.Client

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForTemporal(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIHealthPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIReadyPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
		Expect(applyMigration(repoRoot, cfg.PostgresDSN)).To(Succeed())

		api = apiclient.New(cfg.APIBaseURL, cfg.APIToken)
	})

	It("drafts, reviews and assembles a summons through the real services", func() {
		ctx := context.Background()

		By("opening a case like a user")
		c, err := api.CreateCase(ctx, domain.CaseInput{
			Title:            "Onbetaalde factuur stucwerk",
			ClaimantName:     "J. de Vries",
			DefendantName:    "Bouwbedrijf Jansen B.V.",
			ClaimAmountCents: 125000,
			Description:      "Factuur 2024-031 is ondanks twee aanmaningen niet betaald.",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Status).To(Equal(domain.CaseNewIntake))

		By("uploading a document and waiting for the bucket event to store it")
		content, err := os.ReadFile(filepath.Join(repoRoot, cfg.UploadFixturePath))
		Expect(err).ToNot(HaveOccurred())
		doc, err := api.UploadDocument(ctx, c.ID, filepath.Base(cfg.UploadFixturePath), content)
		Expect(err).ToNot(HaveOccurred())
		Expect(doc.Status).To(Equal(domain.DocumentReceived))

		Eventually(func() domain.CaseStatus {
			view, getErr := api.GetCase(ctx, c.ID)
			Expect(getErr).ToNot(HaveOccurred())
			return view.Status
		}, cfg.DocumentStoredTimeout, cfg.SectionPollInterval).Should(Equal(domain.CaseDocsUploaded))

		By("starting a summons with every section pending")
		sm, err := api.InitSummons(ctx, c.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(sm.Sections).To(HaveLen(len(domain.CanonicalSectionKeys)))

		waitForStatus := func(key domain.SectionKey) domain.Section {
			var current domain.Section
			Eventually(func() domain.SectionStatus {
				list, listErr := api.ListSections(ctx, c.ID, sm.ID)
				Expect(listErr).ToNot(HaveOccurred())
				for _, sec := range list.Sections {
					if sec.Key == key {
						current = sec
					}
				}
				return current.Status
			}, cfg.GenerationTimeout, cfg.SectionPollInterval).ShouldNot(Equal(domain.SectionGenerating))
			return current
		}

		By("rejecting the first draft of FEITEN and approving the revision")
		_, err = api.GenerateSection(ctx, c.ID, sm.ID, domain.SectionFeiten, false)
		Expect(err).ToNot(HaveOccurred())
		first := waitForStatus(domain.SectionFeiten)
		Expect(first.Status).To(Equal(domain.SectionReadyForReview))
		Expect(first.GeneratedText).ToNot(BeNil())

		_, err = api.RejectSection(ctx, c.ID, sm.ID, domain.SectionFeiten, "Noem beide aanmaningsdata.")
		Expect(err).ToNot(HaveOccurred())
		_, err = api.GenerateSection(ctx, c.ID, sm.ID, domain.SectionFeiten, false)
		Expect(err).ToNot(HaveOccurred())
		revised := waitForStatus(domain.SectionFeiten)
		Expect(revised.Status).To(Equal(domain.SectionReadyForReview))
		Expect(revised.GenerationID).ToNot(Equal(first.GenerationID))
		_, err = api.ApproveSection(ctx, c.ID, sm.ID, domain.SectionFeiten)
		Expect(err).ToNot(HaveOccurred())

		By("refusing to assemble while sections are outstanding")
		_, err = api.Assemble(ctx, c.ID, sm.ID)
		Expect(err).To(MatchError(domain.ErrIncompleteWorkflow))

		By("generating and approving the remaining sections")
		for _, key := range domain.CanonicalSectionKeys {
			if key == domain.SectionFeiten {
				continue
			}
			_, err = api.GenerateSection(ctx, c.ID, sm.ID, key, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(waitForStatus(key).Status).To(Equal(domain.SectionReadyForReview))
			_, err = api.ApproveSection(ctx, c.ID, sm.ID, key)
			Expect(err).ToNot(HaveOccurred())
		}

		By("assembling and downloading the result")
		rec, err := api.Assemble(ctx, c.ID, sm.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Version).To(Equal(1))
		Expect(rec.SectionVersions).To(HaveLen(len(domain.CanonicalSectionKeys)))

		html, contentType, err := api.Download(ctx, c.ID, sm.ID, "html")
		Expect(err).ToNot(HaveOccurred())
		Expect(contentType).To(HavePrefix("text/html"))
		Expect(string(html)).To(ContainSubstring("Bouwbedrijf Jansen B.V."))

		view, err := api.GetCase(ctx, c.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(view.Status).To(Equal(domain.CaseSummonsDrafted))

		By("checking the generation workflow history and audit trail")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		workflowID := appTemporal.WorkflowID(defaultWorkflowIDPrefix(), domain.GenerationRequest{
			SummonsID:    sm.ID,
			SectionKey:   domain.SectionFeiten,
			GenerationID: revised.GenerationID,
		})
		order, err := collectActivityOrder(ctx, temporalClient, workflowID)
		Expect(err).ToNot(HaveOccurred())
		Expect(order).To(Equal(cfg.ExpectedActivityOrder))

		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()
		commands, err := fetchStringRows(db, `
			SELECT command FROM section_audit
			WHERE summons_id = $1 AND section_key = $2
			ORDER BY id`, sm.ID, domain.SectionFeiten)
		Expect(err).ToNot(HaveOccurred())
		Expect(commands).To(Equal([]string{"generate", "complete", "reject", "generate", "complete", "approve"}))
	})

	It("admits exactly one of many concurrent commands on a section", func() {
		ctx := context.Background()
		const callers = 8

		c, err := api.CreateCase(ctx, domain.CaseInput{
			Title:            "Niet geleverde bank",
			ClaimantName:     "P. Bakker",
			DefendantName:    "Meubelhandel Noord",
			ClaimAmountCents: 89900,
		})
		Expect(err).ToNot(HaveOccurred())
		sm, err := api.InitSummons(ctx, c.ID)
		Expect(err).ToNot(HaveOccurred())

		concurrently := func(command func() error) []error {
			errs := make([]error, callers)
			start := make(chan struct{})
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					errs[i] = command()
				}(i)
			}
			close(start)
			wg.Wait()
			return errs
		}
		expectOneWinner := func(errs []error, loserStatus domain.SectionStatus) {
			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				var apiErr *apiclient.APIError
				Expect(errors.As(err, &apiErr)).To(BeTrue(), err.Error())
				Expect(apiErr.StatusCode).To(Equal(http.StatusConflict))
				Expect(apiErr.Code).To(Equal("invalid_transition"))
				Expect(apiErr.CurrentStatus).To(Equal(loserStatus))
			}
			Expect(succeeded).To(Equal(1))
		}

		By("firing concurrent generate requests for one section")
		expectOneWinner(concurrently(func() error {
			_, genErr := api.GenerateSection(ctx, c.ID, sm.ID, domain.SectionPetitum, false)
			return genErr
		}), domain.SectionGenerating)

		Eventually(func() domain.SectionStatus {
			list, listErr := api.ListSections(ctx, c.ID, sm.ID)
			Expect(listErr).ToNot(HaveOccurred())
			for _, sec := range list.Sections {
				if sec.Key == domain.SectionPetitum {
					return sec.Status
				}
			}
			return ""
		}, cfg.GenerationTimeout, cfg.SectionPollInterval).Should(Equal(domain.SectionReadyForReview))

		By("firing concurrent approve requests for the same section")
		expectOneWinner(concurrently(func() error {
			_, approveErr := api.ApproveSection(ctx, c.ID, sm.ID, domain.SectionPetitum)
			return approveErr
		}), domain.SectionApproved)

		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()
		commands, err := fetchStringRows(db, `
			SELECT command FROM section_audit
			WHERE summons_id = $1 AND section_key = $2
			ORDER BY id`, sm.ID, domain.SectionPetitum)
		Expect(err).ToNot(HaveOccurred())
		Expect(commands).To(Equal([]string{"generate", "complete", "approve"}))
	})
})

func defaultWorkflowIDPrefix() string {
	return getenv("SYSTEM_TEST_WORKFLOW_ID_PREFIX", "summons-section")
}
