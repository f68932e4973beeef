package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"rechtstreeks/internal/domain"
)

func newCasesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List, create and update cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListCases(cmd, ctx)
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your cases with their progress",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runListCases(cmd, ctx)
			},
		},
		newCaseShowCommand(ctx),
		newCaseCreateCommand(ctx),
		newCaseStatusCommand(ctx),
		newCaseUploadCommand(ctx),
	)
	return cmd
}

func runListCases(cmd *cobra.Command, ctx *commandContext) error {
	api, err := ctx.client()
	if err != nil {
		return err
	}
	cases, err := api.ListCases(cmd.Context())
	if err != nil {
		return err
	}
	if ctx.json() {
		return writeJSON(cmd, cases)
	}
	if len(cases) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cases yet")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderCases(cases, shouldColorize(cmd.OutOrStdout())))
	return nil
}

func newCaseShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show a case and its next step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.client()
			if err != nil {
				return err
			}
			c, err := api.GetCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.json() {
				return writeJSON(cmd, c)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderCase(c, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}
}

func newCaseCreateCommand(ctx *commandContext) *cobra.Command {
	var in domain.CaseInput
	var amount float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.client()
			if err != nil {
				return err
			}
			in.ClaimAmountCents = int64(amount*100 + 0.5)
			c, err := api.CreateCase(cmd.Context(), in)
			if err != nil {
				return err
			}
			if ctx.json() {
				return writeJSON(cmd, c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created case %s\n", c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Short title of the case")
	cmd.Flags().StringVar(&in.ClaimantName, "claimant", "", "Name of the claimant")
	cmd.Flags().StringVar(&in.DefendantName, "defendant", "", "Name of the defendant")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Principal claim in euros")
	cmd.Flags().StringVar(&in.Description, "description", "", "What the dispute is about")
	return cmd
}

func newCaseStatusCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "status <case-id> <status>",
		Short: "Advance a case to a later status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.CaseStatus(strings.ToUpper(args[1]))
			if !domain.KnownCaseStatus(status) {
				return fmt.Errorf("unknown status %q", args[1])
			}
			api, err := ctx.client()
			if err != nil {
				return err
			}
			c, err := api.UpdateCaseStatus(cmd.Context(), args[0], status, force)
			if err != nil {
				return err
			}
			if ctx.json() {
				return writeJSON(cmd, c)
			}
			if c.Status != status {
				fmt.Fprintf(cmd.OutOrStdout(), "Case stays at %s; use --force to move it back\n", c.Status)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Case is now %s\n", c.Projection.Label)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Allow moving the case backwards")
	return cmd
}

func newCaseUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <case-id> <file>",
		Short: "Upload a document to a case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			api, err := ctx.client()
			if err != nil {
				return err
			}
			rec, err := api.UploadDocument(cmd.Context(), args[0], filepath.Base(args[1]), content)
			if err != nil {
				return err
			}
			if ctx.json() {
				return writeJSON(cmd, rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as document %s\n", rec.Filename, rec.ID)
			return nil
		},
	}
}
