package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guarzo/studyplan/modules/plans"
	"github.com/guarzo/studyplan/modules/session"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and inspect study plans",
	}

	cmd.AddCommand(newPlanCreateCommand())
	cmd.AddCommand(newPlanShowCommand())
	cmd.AddCommand(newPlanDocumentCommand())

	return cmd
}

func newPlanCreateCommand() *cobra.Command {
	var req plans.PlanRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Ask the generator for a new plan",
		Example: `  studyplan plan create --objective "Cálculo I" --deadline 2026-12-01 \
    --level iniciante --days seg,qua,sex --difficulties "limites"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			googleID, err := requireGoogleID(c)
			if err != nil {
				return err
			}

			result, err := c.Plans.CreatePlan(cmd.Context(), googleID, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Plan created: %s\n", result.Plan.Request.EventName)
			if result.Events != nil {
				var n []json.RawMessage
				_ = json.Unmarshal(result.Events, &n)
				fmt.Fprintf(out, "  %d calendar events stored\n", len(n))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Objective, "objective", "", "Main objective of the plan (required)")
	f.StringVar(&req.Deadline, "deadline", "", "Target date, YYYY-MM-DD (required)")
	f.StringVar(&req.KnowledgeLevel, "level", "", "Current knowledge level")
	f.StringSliceVar(&req.StudyDays, "days", nil, "Study days, comma separated (required)")
	f.StringVar(&req.AgendaRestrictions, "restrictions", "", "Agenda restrictions")
	f.StringVar(&req.Difficulties, "difficulties", "", "Main difficulties, one per line")
	_ = cmd.MarkFlagRequired("objective")
	_ = cmd.MarkFlagRequired("deadline")
	_ = cmd.MarkFlagRequired("days")
	return cmd
}

func newPlanShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			plan, err := c.Plans.CurrentPlan()
			if errors.Is(err, plans.ErrNoPlan) {
				return errors.New("no active plan; run 'studyplan plan create' first")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r := plan.Request
			fmt.Fprintf(out, "Plan:       %s\n", r.EventName)
			fmt.Fprintf(out, "Objective:  %s\n", r.MainObjective)
			fmt.Fprintf(out, "Deadline:   %s\n", r.EventDate)
			fmt.Fprintf(out, "Days/week:  %d\n", plan.DaysPerWeek)
			if len(r.MainDifficulties) > 0 {
				fmt.Fprintf(out, "Difficulties:\n  - %s\n", strings.Join(r.MainDifficulties, "\n  - "))
			}
			return nil
		},
	}
}

func newPlanDocumentCommand() *cobra.Command {
	var outDir string
	var output string

	cmd := &cobra.Command{
		Use:   "document <plan-id>",
		Short: "Download the study material for a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			googleID, err := requireGoogleID(c)
			if err != nil {
				return err
			}

			doc, err := c.Plans.GenerateDocument(cmd.Context(), googleID, args[0])
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = filepath.Join(outDir, filepath.Base(doc.Filename))
			}
			if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s (%d bytes)\n", path, len(doc.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (overrides --dir)")
	cmd.Flags().StringVar(&outDir, "dir", ".", "Directory for the downloaded file")
	return cmd
}

func requireGoogleID(c *CliContext) (string, error) {
	id, err := c.Session.GoogleID()
	if errors.Is(err, session.ErrNotLoggedIn) {
		return "", errors.New("not logged in; run 'studyplan login' first")
	}
	return id, err
}
