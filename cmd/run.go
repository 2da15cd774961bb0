package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maclay/research-assistant/internal/model"
)

var (
	runKind            string
	runProduct         string
	runSegment         string
	runElement         string
	runCharacteristics string
	runBenchmarks      string
	runPlayers         string
	runCountries       string
	runOutput          string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single research end to end and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req := model.RunRequest{
			Kind:                   model.ResearchKind(runKind),
			ProductDescription:     runProduct,
			Segment:                runSegment,
			ResearchElement:        runElement,
			ProductCharacteristics: runCharacteristics,
			Benchmarks:             runBenchmarks,
			RequiredPlayers:        runPlayers,
			RequiredCountries:      runCountries,
		}
		if !req.Kind.Valid() {
			return eris.New("--kind must be feature or product")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Store.CreateRun(ctx, req)
		if err != nil {
			return err
		}
		if err := env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
			return err
		}

		result := env.Processor.Run(ctx, run.ID, req)
		if err := env.Store.UpdateRunResult(ctx, run.ID, result); err != nil {
			zap.L().Error("persist run result failed", zap.Error(err))
		}
		if !result.Success {
			return eris.Errorf("research failed: %s", result.Error)
		}

		report := &model.Report{
			Title:                  model.ReportTitle(req),
			Content:                result.Report,
			Kind:                   req.Kind,
			ProductDescription:     req.ProductDescription,
			Segment:                req.Segment,
			ResearchElement:        req.ResearchElement,
			ProductCharacteristics: req.ProductCharacteristics,
			Benchmarks:             req.Benchmarks,
			RequiredPlayers:        req.RequiredPlayers,
			RequiredCountries:      req.RequiredCountries,
			Model:                  cfg.Gemini.Model,
			ProcessingMillis:       result.DurationMillis,
		}
		if err := env.Store.SaveReport(ctx, report); err != nil {
			zap.L().Error("save report failed", zap.Error(err))
		}

		if runOutput != "" {
			if err := os.WriteFile(runOutput, []byte(result.Report), 0o644); err != nil {
				return eris.Wrapf(err, "write %s", runOutput)
			}
			zap.L().Info("report written",
				zap.String("path", runOutput),
				zap.String("report_id", report.ID),
				zap.Int64("elapsed_ms", result.DurationMillis))
			return nil
		}

		cmd.Println(result.Report)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runKind, "kind", "feature", "research kind: feature or product")
	runCmd.Flags().StringVar(&runProduct, "product", "", "product description")
	runCmd.Flags().StringVar(&runSegment, "segment", "", "market segment")
	runCmd.Flags().StringVar(&runElement, "element", "", "feature to research (kind=feature)")
	runCmd.Flags().StringVar(&runCharacteristics, "characteristics", "", "product characteristics (kind=product)")
	runCmd.Flags().StringVar(&runBenchmarks, "benchmarks", "", "benchmark companies or products")
	runCmd.Flags().StringVar(&runPlayers, "players", "", "players that must be covered")
	runCmd.Flags().StringVar(&runCountries, "countries", "", "countries that must be covered")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write the report to a file instead of stdout")
	rootCmd.AddCommand(runCmd)
}
