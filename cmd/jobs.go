package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/analyst/internal/model"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect stored analyses",
	Long:  "Commands for listing, viewing, and deleting analysis jobs.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analyses, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Service.List(ctx)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No analyses found.")
			return nil
		}

		formatJobList(os.Stdout, entries)
		return nil
	},
}

// -- jobs show --

var showJSON bool

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Service.Fetch(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}
		return printJob(os.Stdout, job, showJSON)
	},
}

// -- jobs delete --

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Service.Delete(ctx, args[0]); err != nil {
			return eris.Wrap(err, "jobs delete")
		}
		fmt.Fprintf(os.Stderr, "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	jobsShowCmd.Flags().BoolVar(&showJSON, "json", false, "print the job document as JSON")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobList writes a tabular list of index entries to w.
func formatJobList(out io.Writer, entries []model.IndexEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMPANY\tSTATUS\tCREATED")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.ID, e.CompanyName, e.Status, e.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

// printJob writes job as indented JSON or as a readable report.
func printJob(out io.Writer, job *model.Job, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}
	_, err := io.WriteString(out, renderJob(job))
	return err
}

// renderJob formats a job as markdown: status, agent sections in pipeline
// order and the open follow-up questions.
func renderJob(job *model.Job) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", job.CompanyName)
	fmt.Fprintf(&b, "- ID: %s\n", job.ID)
	fmt.Fprintf(&b, "- Status: %s\n", job.Status)
	if job.CurrentStep != "" {
		fmt.Fprintf(&b, "- Step: %s\n", job.CurrentStep)
	}
	fmt.Fprintf(&b, "- Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if n := len(job.DeepenHistory); n > 0 {
		fmt.Fprintf(&b, "- Follow-up rounds: %d\n", n)
	}

	for _, a := range job.Agents {
		switch a.Status {
		case model.AgentStatusComplete:
			fmt.Fprintf(&b, "\n## %s %s\n\n%s\n", a.Emoji, a.Title, strings.TrimSpace(a.Content))
		case model.AgentStatusError:
			fmt.Fprintf(&b, "\n## %s %s\n\n_Failed: %s_\n", a.Emoji, a.Title, a.Error)
		case model.AgentStatusSkipped:
			fmt.Fprintf(&b, "\n## %s %s\n\n_Skipped: %s_\n", a.Emoji, a.Title, a.SkippedReason)
		}
	}

	if len(job.GapQuestions) > 0 {
		b.WriteString("\n## Follow-up questions\n\n")
		for _, q := range job.GapQuestions {
			fmt.Fprintf(&b, "- [%s] (%s, %s) %s\n", q.ID, q.Priority, q.Category, q.Question)
		}
	}

	return b.String()
}
