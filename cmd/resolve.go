package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/config"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/pipeline"
)

// resolveFlags are the command-line overrides for one resolve run.
type resolveFlags struct {
	input           string
	output          string
	sheet           string
	segment         string
	fixtures        string
	concurrency     int
	checkpointEvery int
	maxCost         float64
	resume          string
}

var resolveOpts resolveFlags

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Find and score owner contacts for a list of companies",
	Long:  "Reads a company list (CSV, TSV, JSON, or XLSX from a path, http(s) URL, or ftp URL), resolves contacts for each company, and writes one result per company.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyResolveFlags(cmd, cfg, resolveOpts)
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		return runResolve(ctx, cfg, resolveOpts, os.Stderr)
	},
}

// applyResolveFlags copies explicitly set flags over the loaded config.
func applyResolveFlags(cmd *cobra.Command, c *config.Config, f resolveFlags) {
	if cmd.Flags().Changed("segment") {
		c.Validator.Segment = f.segment
	}
	if cmd.Flags().Changed("fixtures") {
		c.Fixtures = f.fixtures
	}
	if cmd.Flags().Changed("concurrency") {
		c.Batch.Concurrency = f.concurrency
	}
	if cmd.Flags().Changed("checkpoint-every") {
		c.Batch.CheckpointInterval = f.checkpointEvery
	}
	if cmd.Flags().Changed("max-cost") {
		c.Waterfall.MaxCostPerCandidateUSD = f.maxCost
	}
}

// runResolve reads the input, runs the batch, writes results, and prints a
// summary to status.
func runResolve(ctx context.Context, c *config.Config, f resolveFlags, status io.Writer) error {
	e, err := initEnv(ctx, c, envOptions{Sheet: f.sheet})
	if err != nil {
		return err
	}
	defer e.Close()

	companies, err := e.Reader.Read(ctx, f.input)
	if err != nil {
		return err
	}
	zap.L().Info("input loaded",
		zap.String("input", f.input),
		zap.Int("companies", len(companies)),
	)

	out, runErr := e.Pipeline.Run(ctx, companies, pipeline.RunOptions{
		Input:    f.input,
		Segment:  c.Validator.Segment,
		ResumeID: f.resume,
	})
	if out == nil {
		return runErr
	}

	if err := pipeline.WriteFile(f.output, out.Results); err != nil {
		return err
	}
	printRunSummary(status, out.Run)

	if runErr != nil {
		return eris.Wrapf(runErr, "run %s stopped early; continue with --resume %s", out.Run.ID, out.Run.ID)
	}
	return nil
}

// printRunSummary writes a short human-readable run summary.
func printRunSummary(w io.Writer, run model.Run) {
	_, _ = fmt.Fprintf(w, "run %s: %s\n", run.ID, run.Status)
	if run.Summary == nil {
		return
	}
	s := run.Summary
	_, _ = fmt.Fprintf(w, "  companies:      %d (%d resumed)\n", s.Companies, s.Resumed)
	_, _ = fmt.Fprintf(w, "  with contacts:  %d\n", s.WithContacts)
	_, _ = fmt.Fprintf(w, "  valid contacts: %d\n", s.ValidContacts)
	_, _ = fmt.Fprintf(w, "  company errors: %d\n", s.CompanyErrors)
	_, _ = fmt.Fprintf(w, "  cost:           $%.4f\n", s.TotalCostUSD)
}

func init() {
	f := resolveCmd.Flags()
	f.StringVarP(&resolveOpts.input, "input", "i", "", "company list: file path, http(s) URL, or ftp URL (required)")
	f.StringVarP(&resolveOpts.output, "output", "o", "-", "output path (.json or .jsonl); - writes JSON to stdout")
	f.StringVar(&resolveOpts.sheet, "sheet", "", "worksheet name for .xlsx input (default first sheet)")
	f.StringVar(&resolveOpts.segment, "segment", "smb", "validation segment: smb (rule scoring) or enterprise (LLM judge)")
	f.StringVar(&resolveOpts.fixtures, "fixtures", "", "static provider fixtures file; no live API calls are made")
	f.IntVar(&resolveOpts.concurrency, "concurrency", 8, "companies processed at once")
	f.IntVar(&resolveOpts.checkpointEvery, "checkpoint-every", 25, "save progress every N companies (0 disables)")
	f.Float64Var(&resolveOpts.maxCost, "max-cost", 0.25, "enrichment spend ceiling per candidate in USD")
	f.StringVar(&resolveOpts.resume, "resume", "", "continue an interrupted run by ID")
	_ = resolveCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(resolveCmd)
}
