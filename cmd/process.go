package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <id>",
	Short: "Run or resume the pipeline for an existing analysis",
	Long:  "Runs the pipeline for a job. A complete job is left alone, a job with a live run reports already-processing and a stale run is recovered.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.Service.Trigger(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "process")
		}
		fmt.Fprintln(os.Stdout, outcome)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
