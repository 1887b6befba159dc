package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/analysis"
	"github.com/sells-group/analyst/internal/model"
)

var (
	analyzeName     string
	analyzeText     string
	analyzeTextFile string
	analyzeFiles    []string
	analyzeRun      bool
	analyzeJSON     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Create an analysis and run the pipeline",
	Long:  "Creates a job from a company name, pasted text and/or local documents, runs the full pipeline and prints the result.",
	Example: `  analyst analyze --name "Acme Robotics"
  analyst analyze --file deck.pdf --file financials.xlsx
  analyst analyze --text-file notes.txt --run=false`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		text := analyzeText
		if analyzeTextFile != "" {
			data, err := os.ReadFile(analyzeTextFile)
			if err != nil {
				return eris.Wrapf(err, "analyze: read %s", analyzeTextFile)
			}
			text = string(data)
		}

		env, err := initCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		files, err := uploadLocalFiles(ctx, env.Service, analyzeFiles)
		if err != nil {
			return err
		}

		autoStart := false
		job, err := env.Service.Create(ctx, analysis.CreateRequest{
			CompanyName: analyzeName,
			Text:        text,
			Files:       files,
			AutoStart:   &autoStart,
		})
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		fmt.Fprintf(os.Stderr, "Created %s (%s)\n", job.ID, job.CompanyName)

		if !analyzeRun {
			fmt.Fprintf(os.Stderr, "Run it with: analyst process %s\n", job.ID)
			return nil
		}

		outcome, err := env.Service.Trigger(ctx, job.ID)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		zap.L().Info("analysis finished", zap.String("job_id", job.ID), zap.String("outcome", string(outcome)))

		job, err = env.Service.Fetch(ctx, job.ID)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		return printJob(os.Stdout, job, analyzeJSON)
	},
}

// uploadLocalFiles stores each local path in the upload bucket.
func uploadLocalFiles(ctx context.Context, svc *analysis.Service, paths []string) ([]model.FileRef, error) {
	refs := make([]model.FileRef, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", p)
		}
		ref, err := svc.Upload(ctx, filepath.Base(p), contentTypeFor(p), data)
		if err != nil {
			return nil, eris.Wrapf(err, "upload %s", p)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// uploadExtTypes maps accepted document extensions to their content type.
var uploadExtTypes = map[string]string{
	".pdf":      "application/pdf",
	".txt":      "text/plain",
	".md":       "text/plain",
	".markdown": "text/plain",
	".csv":      "text/csv",
	".json":     "application/json",
	".xlsx":     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".webp":     "image/webp",
}

// contentTypeFor guesses a content type from the file extension.
func contentTypeFor(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if ct, ok := uploadExtTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeName, "name", "", "company name")
	f.StringVar(&analyzeText, "text", "", "pasted description or notes")
	f.StringVar(&analyzeTextFile, "text-file", "", "read the pasted text from a file")
	f.StringArrayVar(&analyzeFiles, "file", nil, "document to upload and analyze (repeatable)")
	f.BoolVar(&analyzeRun, "run", true, "run the pipeline after creating the job")
	f.BoolVar(&analyzeJSON, "json", false, "print the job document as JSON")
	analyzeCmd.MarkFlagsMutuallyExclusive("text", "text-file")

	rootCmd.AddCommand(analyzeCmd)
}
