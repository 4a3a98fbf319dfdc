package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/finsim/retirement-simulator/internal/calculation"
	"github.com/finsim/retirement-simulator/internal/config"
	"github.com/finsim/retirement-simulator/internal/output"
)

var (
	flagConfig  string
	flagTrials  int
	flagSeed    int64
	flagRisk    bool
	flagVerbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "finsim",
		Short: "Monte Carlo retirement portfolio simulator",
		Long: `finsim projects long-horizon retirement outcomes by running an
ensemble of correlated stochastic return paths through accumulation and
decumulation, with tax-lot accounting and distributional risk metrics.`,
	}

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulation from a scenario file",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "scenario YAML file (required)")
	simulateCmd.Flags().IntVar(&flagTrials, "trials", 0, "override the scenario's trial count")
	simulateCmd.Flags().Int64Var(&flagSeed, "seed", 0, "override the scenario's random seed")
	simulateCmd.Flags().BoolVar(&flagRisk, "risk", false, "include the VaR/CVaR risk report")
	simulateCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	_ = simulateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	params, err := config.LoadScenario(flagConfig)
	if err != nil {
		return err
	}
	if flagTrials > 0 {
		params.NumTrials = flagTrials
	}
	if flagSeed != 0 {
		params.Seed = flagSeed
	}

	step := params.NumTrials / 10
	if step == 0 {
		step = 1
	}
	params.Progress = func(completed, total int) {
		if completed%step == 0 || completed == total {
			log.Info().Int("completed", completed).Int("total", total).Msg("progress")
		}
	}

	// Ctrl-C cancels between trials; the completed prefix is still reported.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simulator := calculation.NewSimulator(log)
	result, err := simulator.Run(ctx, *params)
	if err != nil {
		return err
	}

	formatter := output.NewConsoleFormatter()
	fmt.Print(formatter.FormatSummary(result))

	if flagRisk && len(result.Trials) > 0 {
		reference := result.RealAccumulationStats.Median.InexactFloat64()
		report := calculation.BuildRiskReport(result, params.DecumulationAssets, calculation.DefaultConfidenceLevels, reference)
		fmt.Print(formatter.FormatRiskReport(report))
	}
	return nil
}
