package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/pipeline"
)

var (
	deepenAnswers []string
	deepenFiles   []string
	deepenJSON    bool
)

var deepenCmd = &cobra.Command{
	Use:   "deepen <id>",
	Short: "Answer follow-up questions and refine a completed analysis",
	Example: `  analyst deepen 3f2c... --answer "q1=ARR is $4.2M" --answer "q3=No debt"
  analyst deepen 3f2c... --file q2=cap_table.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		answers, err := parsePairs(deepenAnswers, "--answer")
		if err != nil {
			return err
		}
		filePaths, err := parsePairs(deepenFiles, "--file")
		if err != nil {
			return err
		}

		env, err := initCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := pipeline.DeepenRequest{Answers: answers}
		for q, p := range filePaths {
			refs, err := uploadLocalFiles(ctx, env.Service, []string{p})
			if err != nil {
				return err
			}
			if req.Files == nil {
				req.Files = map[string][]model.FileRef{}
			}
			req.Files[q] = append(req.Files[q], refs...)
		}

		if err := env.Service.Deepen(ctx, args[0], req); err != nil {
			return eris.Wrap(err, "deepen")
		}
		fmt.Fprintln(os.Stderr, "Follow-up analysis queued, waiting for it to finish...")
		env.Drain()

		job, err := env.Service.Fetch(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "deepen")
		}
		return printJob(os.Stdout, job, deepenJSON)
	},
}

// parsePairs splits key=value flag values. A repeated key keeps the last
// value.
func parsePairs(values []string, flag string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, eris.Errorf("%s %q: expected question=value", flag, v)
		}
		out[k] = val
	}
	return out, nil
}

func init() {
	f := deepenCmd.Flags()
	f.StringArrayVar(&deepenAnswers, "answer", nil, "answer to a follow-up question as question=answer (repeatable)")
	f.StringArrayVar(&deepenFiles, "file", nil, "document for a follow-up question as question=path (repeatable)")
	f.BoolVar(&deepenJSON, "json", false, "print the job document as JSON")

	rootCmd.AddCommand(deepenCmd)
}
