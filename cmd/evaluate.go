package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/config"
	"github.com/sells-group/contact-cli/internal/eval"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/pipeline"
)

type evaluateFlags struct {
	truth    string
	results  string
	report   string
	fixtures string
	segment  string
	probe    bool
	strict   bool
}

var evaluateOpts evaluateFlags

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score pipeline output against a ground-truth dataset",
	Long:  "Runs the pipeline over a ground-truth dataset (or reads saved results) and reports identity accuracy, email match rate, confidence calibration, per-provider cost per correct contact, and failure attribution.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("fixtures") {
			cfg.Fixtures = evaluateOpts.fixtures
		}
		if cmd.Flags().Changed("segment") {
			cfg.Validator.Segment = evaluateOpts.segment
		}
		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}

		rep, err := runEvaluate(ctx, cfg, evaluateOpts)
		if err != nil {
			return err
		}
		if err := writeReport(os.Stdout, evaluateOpts.report, rep); err != nil {
			return err
		}
		if passed, total := rep.PassCount(); evaluateOpts.strict && passed < total {
			return eris.Errorf("evaluation failed: %d/%d metrics within threshold", passed, total)
		}
		return nil
	},
}

// runEvaluate produces the evaluation report for the configured dataset.
func runEvaluate(ctx context.Context, c *config.Config, f evaluateFlags) (*eval.Report, error) {
	ds, err := eval.LoadDataset(f.truth)
	if err != nil {
		return nil, err
	}

	var results []model.CompanyResult
	var e *env
	if f.results == "" || f.probe {
		e, err = initEnv(ctx, c, envOptions{})
		if err != nil {
			return nil, err
		}
		defer e.Close()
	}

	if f.results != "" {
		results, err = readResultsFile(f.results)
		if err != nil {
			return nil, err
		}
	} else {
		out, err := e.Pipeline.Run(ctx, ds.CompanyRecords(), pipeline.RunOptions{
			Input:   f.truth,
			Segment: c.Validator.Segment,
		})
		if err != nil {
			return nil, err
		}
		results = out.Results
	}

	var probes []eval.ProviderRun
	if f.probe {
		probes, err = eval.ProviderProbe(ctx, e.Discovery, e.Registry.Discoverers(), ds.CompanyRecords())
		if err != nil {
			return nil, err
		}
	}

	rep := eval.Evaluate(ds, results, probes, c.Eval)
	passed, total := rep.PassCount()
	zap.L().Info("evaluation complete",
		zap.String("dataset", rep.Dataset),
		zap.Int("companies", rep.Companies),
		zap.Int("passed", passed),
		zap.Int("metrics", total),
	)
	return rep, nil
}

func readResultsFile(path string) ([]model.CompanyResult, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open results %s", path)
	}
	defer fh.Close() //nolint:errcheck
	return pipeline.ReadResults(fh)
}

// writeReport prints the text report to w and, when path is set, saves the
// JSON report there.
func writeReport(w io.Writer, path string, rep *eval.Report) error {
	if _, err := fmt.Fprint(w, eval.FormatReport(rep)); err != nil {
		return eris.Wrap(err, "write report")
	}
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write report %s", path)
	}
	return nil
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVarP(&evaluateOpts.truth, "truth", "t", "", "ground-truth dataset (.yaml or .json) (required)")
	f.StringVar(&evaluateOpts.results, "results", "", "score saved resolve output instead of running the pipeline")
	f.StringVar(&evaluateOpts.report, "report", "", "also write the JSON report to this path")
	f.StringVar(&evaluateOpts.fixtures, "fixtures", "", "static provider fixtures file; no live API calls are made")
	f.StringVar(&evaluateOpts.segment, "segment", "smb", "validation segment: smb or enterprise")
	f.BoolVar(&evaluateOpts.probe, "probe", false, "also run each discovery provider alone and compare them")
	f.BoolVar(&evaluateOpts.strict, "strict", false, "exit non-zero when any metric misses its threshold")
	_ = evaluateCmd.MarkFlagRequired("truth")
	rootCmd.AddCommand(evaluateCmd)
}
