package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/internal/display"
	"github.com/dyike/CortexQuant/internal/utils"
	"github.com/dyike/CortexQuant/models"
)

const version = "0.3.0"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	s := newSession(os.Stdout)
	return newRootCmd(s)
}

func newRootCmd(s *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cortexquant",
		Short: "CortexQuant - multi-agent A-share analysis",
		Long: `CortexQuant runs a roster of LLM-backed investor agents and a rule-based
risk agent over a set of instruments, selects candidates from sector and
market-wide money-flow rankings, and turns the signals into trade decisions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			s.close()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&s.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&s.configPath, "config", "", "Configuration file path")

	rootCmd.AddCommand(newAgentsCmd(s))
	rootCmd.AddCommand(newDecideCmd(s))
	rootCmd.AddCommand(newSelectCmd(s))
	rootCmd.AddCommand(newServeMetricsCmd(s))
	rootCmd.AddCommand(newConfigCmd(s))
	rootCmd.AddCommand(newVersionCmd(s))

	return rootCmd
}

type outputFlags struct {
	holdingsPath string
	csvDir       string
	jsonPath     string
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.holdingsPath, "holdings", "", "Holdings JSON file (cash and positions)")
	cmd.Flags().StringVar(&f.csvDir, "csv", "", "Directory to export CSV results into")
	cmd.Flags().StringVar(&f.jsonPath, "json", "", "Write the full result as JSON to this file")
}

// newAgentsCmd runs every agent and prints the signals
func newAgentsCmd(s *session) *cobra.Command {
	var flags outputFlags
	cmd := &cobra.Command{
		Use:   "agents [CODE...]",
		Short: "Run all agents over the given instruments",
		Example: `  cortexquant agents 600519 000001
  cortexquant agents AAPL --holdings holdings.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, holdings, err := resolveInputs(args, flags.holdingsPath)
			if err != nil {
				return err
			}
			engine, err := s.engine()
			if err != nil {
				return err
			}

			run := engine.RunAllAgents(cmd.Context(), codes, holdings)
			d := s.display()
			d.ShowSignals(run)
			d.ShowAgentStatus(engine.Coordinator.Status())
			d.ShowFooter()

			if flags.csvDir != "" {
				path, err := utils.NewCSVManager(flags.csvDir).WriteSignalsToCSV(run.Signals)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "📁 Signals exported to %s\n", path)
			}
			return writeJSON(flags.jsonPath, run)
		},
	}
	flags.register(cmd)
	return cmd
}

// newDecideCmd runs the agents and feeds their signals to the aggregator
func newDecideCmd(s *session) *cobra.Command {
	var flags outputFlags
	cmd := &cobra.Command{
		Use:   "decide [CODE...]",
		Short: "Run all agents and produce trade decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, holdings, err := resolveInputs(args, flags.holdingsPath)
			if err != nil {
				return err
			}
			engine, err := s.engine()
			if err != nil {
				return err
			}

			analysis, err := engine.Analyze(cmd.Context(), codes, holdings)
			if err != nil {
				return err
			}
			d := s.display()
			d.ShowSignals(analysis.RunResult)
			d.ShowDecisions(analysis.Decisions)
			d.ShowFooter()

			if flags.csvDir != "" {
				path, err := utils.NewCSVManager(flags.csvDir).WriteDecisionsToCSV(analysis.Decisions, analysis.RiskLimits)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "📁 Decisions exported to %s\n", path)
			}
			return writeJSON(flags.jsonPath, analysis)
		},
	}
	flags.register(cmd)
	return cmd
}

// newSelectCmd runs the two-phase candidate selection
func newSelectCmd(s *session) *cobra.Command {
	var (
		flags outputFlags
		held  []string
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select candidates from sector and market-wide money flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.holdingsPath != "" {
				holdings, err := loadHoldings(flags.holdingsPath)
				if err != nil {
					return err
				}
				held = append(held, holdings.Codes()...)
			}
			engine, err := s.engine()
			if err != nil {
				return err
			}

			result, err := engine.SelectCandidates(cmd.Context(), normalizeCodes(held))
			if err != nil {
				return err
			}
			d := s.display()
			d.ShowPipeline(result)
			d.ShowFooter()

			if flags.csvDir != "" {
				path, err := utils.NewCSVManager(flags.csvDir).WriteCandidatesToCSV(result)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "📁 Candidates exported to %s\n", path)
			}
			return writeJSON(flags.jsonPath, result)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&held, "held", nil, "Codes already held, excluded from selection")
	return cmd
}

// newServeMetricsCmd exposes the Prometheus registry and optionally keeps
// running selection on an interval so the counters move.
func newServeMetricsCmd(s *session) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve Prometheus metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := s.engine()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = engine.Config.MetricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			if interval > 0 {
				go s.selectEvery(ctx, interval)
			}

			errCh := make(chan error, 1)
			go func() {
				s.logger.Info("serving metrics", zap.String("addr", addr))
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to metrics_addr from config)")
	cmd.Flags().DurationVar(&interval, "select-every", 0, "Run candidate selection on this interval")
	return cmd
}

func (s *session) selectEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The runtime may have swapped engines since the last tick.
			engine := s.runtime.Engine()
			if _, err := engine.SelectCandidates(ctx, nil); err != nil {
				s.logger.Warn("scheduled selection failed", zap.Error(err))
			}
		}
	}
}

// newConfigCmd creates the config command
func newConfigCmd(s *session) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := s.engine()
			if err != nil {
				return err
			}
			cfg := engine.Config
			cfg.DeepSeekAPIKey = mask(cfg.DeepSeekAPIKey)
			cfg.OpenAIAPIKey = mask(cfg.OpenAIAPIKey)
			cfg.LongportAppSecret = mask(cfg.LongportAppSecret)
			cfg.LongportAccessToken = mask(cfg.LongportAccessToken)
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, string(data))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "update JSON",
		Short: "Merge a JSON object into the configuration and rebuild the engine",
		Example: `  cortexquant config update '{"agent_concurrency": 4}'`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := s.engine(); err != nil {
				return err
			}
			if err := s.runtime.UpdateConfigJSON(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(s.out, "✅ Configuration updated")
			return nil
		},
	})

	return configCmd
}

// newVersionCmd creates the version command
func newVersionCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(s.out, "CortexQuant v%s\n", version)
		},
	}
}

// resolveInputs returns the codes to analyze and the holdings. Codes come
// from args, else from held positions, else from an interactive prompt.
func resolveInputs(args []string, holdingsPath string) ([]string, models.Holdings, error) {
	var holdings models.Holdings
	if holdingsPath != "" {
		h, err := loadHoldings(holdingsPath)
		if err != nil {
			return nil, holdings, err
		}
		holdings = h
	}

	codes := normalizeCodes(args)
	if len(codes) == 0 {
		codes = normalizeCodes(holdings.Codes())
	}
	if len(codes) == 0 {
		prompted, err := PromptForCodes()
		if err != nil {
			return nil, holdings, err
		}
		codes = prompted
	}
	return codes, holdings, nil
}

func writeJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	return display.SaveResultsToFile(v, filepath.Clean(path))
}

func mask(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
