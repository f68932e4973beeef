package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rechtstreeks/internal/client"
	"rechtstreeks/internal/domain"
)

func newSummonsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summons",
		Short: "Start or inspect a summons",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init <case-id>",
			Short: "Start a new summons with all sections pending",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				api, err := ctx.client()
				if err != nil {
					return err
				}
				sm, err := api.InitSummons(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.json() {
					return writeJSON(cmd, sm)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started summons %s\n", sm.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <case-id> <summons-id>",
			Short: "Show a summons with its sections and latest assembly",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				api, err := ctx.client()
				if err != nil {
					return err
				}
				sm, err := api.GetSummons(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.json() {
					return writeJSON(cmd, sm)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Summons %s: %s\n", sm.ID, sm.Status)
				fmt.Fprintln(out, renderSections(sm.Sections, shouldColorize(out)))
				if sm.LatestAssembly != nil {
					fmt.Fprintf(out, "Latest assembly: version %d\n", sm.LatestAssembly.Version)
				}
				return nil
			},
		},
	)
	return cmd
}

func newSectionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sections <case-id> <summons-id>",
		Short: "List the sections of a summons in canonical order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := api.ListSections(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if ctx.json() {
				return writeJSON(cmd, list)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSections(list.Sections, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var reopen bool
	var wait bool
	cmd := &cobra.Command{
		Use:   "generate <case-id> <summons-id> <section>",
		Short: "Generate text for a section",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseSectionArg(args[2])
			if err != nil {
				return err
			}
			api, err := ctx.client()
			if err != nil {
				return err
			}
			sec, err := api.GenerateSection(cmd.Context(), args[0], args[1], key, reopen)
			if err != nil {
				return explainCommandError(err)
			}
			if !wait {
				if ctx.json() {
					return writeJSON(cmd, sec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generating %s\n", key)
				return nil
			}
			return runWatch(cmd, ctx, api, args[0], args[1])
		},
	}
	cmd.Flags().BoolVar(&reopen, "reopen", false, "Regenerate a section that was already approved")
	cmd.Flags().BoolVar(&wait, "wait", false, "Follow the summons until the generation settles")
	return cmd
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <case-id> <summons-id> <section>",
		Short: "Approve a section that is ready for review",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseSectionArg(args[2])
			if err != nil {
				return err
			}
			api, err := ctx.client()
			if err != nil {
				return err
			}
			sec, err := api.ApproveSection(cmd.Context(), args[0], args[1], key)
			if err != nil {
				return explainCommandError(err)
			}
			return printSection(cmd, ctx, sec, "Approved")
		},
	}
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "reject <case-id> <summons-id> <section>",
		Short: "Reject a section with feedback for the next generation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseSectionArg(args[2])
			if err != nil {
				return err
			}
			api, err := ctx.client()
			if err != nil {
				return err
			}
			sec, err := api.RejectSection(cmd.Context(), args[0], args[1], key, feedback)
			if err != nil {
				return explainCommandError(err)
			}
			return printSection(cmd, ctx, sec, "Rejected")
		},
	}
	cmd.Flags().StringVarP(&feedback, "feedback", "f", "", "What should change in the next version")
	return cmd
}

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assemble <case-id> <summons-id>",
		Short: "Assemble the approved sections into a new summons version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.client()
			if err != nil {
				return err
			}
			rec, err := api.Assemble(cmd.Context(), args[0], args[1])
			if err != nil {
				return explainCommandError(err)
			}
			if ctx.json() {
				return writeJSON(cmd, rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assembled version %d\n", rec.Version)
			return nil
		},
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var format string
	var output string
	cmd := &cobra.Command{
		Use:   "download <case-id> <summons-id>",
		Short: "Download the latest assembled summons",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "pdf" && format != "html" {
				return fmt.Errorf("format must be pdf or html")
			}
			api, err := ctx.client()
			if err != nil {
				return err
			}
			content, contentType, err := api.Download(cmd.Context(), args[0], args[1], format)
			if err != nil {
				return err
			}
			if output == "" {
				output = "dagvaarding." + extensionFor(contentType, format)
			}
			if err := os.WriteFile(output, content, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", output, len(content))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Target file")
	return cmd
}

// The printable output is plain text when no PDF renderer is configured.
func extensionFor(contentType, format string) string {
	switch {
	case strings.HasPrefix(contentType, "application/pdf"):
		return "pdf"
	case strings.HasPrefix(contentType, "text/html"):
		return "html"
	case strings.HasPrefix(contentType, "text/plain"):
		return "txt"
	}
	return format
}

func parseSectionArg(v string) (domain.SectionKey, error) {
	key, err := domain.ParseSectionKey(strings.ReplaceAll(v, "-", "_"))
	if err != nil {
		keys := make([]string, len(domain.CanonicalSectionKeys))
		for i, k := range domain.CanonicalSectionKeys {
			keys[i] = string(k)
		}
		return "", fmt.Errorf("unknown section %q (one of %s)", v, strings.Join(keys, ", "))
	}
	return key, nil
}

func printSection(cmd *cobra.Command, ctx *commandContext, sec domain.Section, verb string) error {
	if ctx.json() {
		return writeJSON(cmd, sec)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (%s)\n", verb, sec.Key, paint(string(sec.Status), shouldColorize(out), sectionStatusColor(sec.Status)...))
	return nil
}

func explainCommandError(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrInvalidTransition) && apiErr.CurrentStatus != "":
		return fmt.Errorf("%s (section is %s)", apiErr.Message, apiErr.CurrentStatus)
	case errors.Is(err, domain.ErrIncompleteWorkflow):
		keys := make([]string, len(apiErr.Outstanding))
		for i, k := range apiErr.Outstanding {
			keys[i] = string(k)
		}
		return fmt.Errorf("not all sections are approved; outstanding: %s", strings.Join(keys, ", "))
	}
	return err
}
