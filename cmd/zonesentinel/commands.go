package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ZoneSentinel/internal/collector"
	"ZoneSentinel/internal/config"
	"ZoneSentinel/internal/engine"
	"ZoneSentinel/internal/metrics"
	"ZoneSentinel/internal/notifier"
	"ZoneSentinel/internal/recorder"
	"ZoneSentinel/internal/scheduler"
)

// app carries what every command needs after config loading.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var cfgPath, logLevel string

	root := &cobra.Command{
		Use:           "zonesentinel",
		Short:         "Multi-timeframe reaction zone detector and backtester",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				cfgPath = os.Getenv("CONFIG_PATH")
			}
			if cfgPath == "" {
				cfgPath = "configs/config.yaml"
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "configuration file path (default $CONFIG_PATH or configs/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newScheduleCmd(a))
	root.AddCommand(newRunsCmd(a))
	return root
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	if format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

func newRunCmd(a *app) *cobra.Command {
	var symbol, source, start, end string
	var record, notify bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backtest and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if symbol != "" {
				cfg.Symbol = symbol
			}
			if source != "" {
				cfg.Data.Source = source
			}
			if start != "" {
				cfg.Backtest.Start = start
			}
			if end != "" {
				cfg.Backtest.End = end
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched, closeFn, err := a.buildScheduler(ctx, nil, record, notify)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := sched.RunNow()
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "override symbol")
	cmd.Flags().StringVar(&source, "source", "", "data source: csv or mock")
	cmd.Flags().StringVar(&start, "start", "", "first traded bar (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "last traded bar (YYYY-MM-DD or RFC3339)")
	cmd.Flags().BoolVar(&record, "record", false, "persist the run to SQLite")
	cmd.Flags().BoolVar(&notify, "notify", false, "send the summary to Telegram")
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run replays on the configured cron spec and serve /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			sched, closeFn, err := a.buildScheduler(ctx, m, true, true)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := sched.Register(cfg.Schedule.Cron); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(reg), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("metrics server", zap.Error(err))
				}
			}()
			a.logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))

			if tn, ok := sched.Notifier.(*notifier.TelegramNotifier); ok {
				go tn.StartPolling(ctx, sched.HandleCommand)
				a.logger.Info("telegram polling started")
			}
			if runOnStart || os.Getenv("RUN_ON_START") == "true" {
				go func() {
					if _, err := sched.RunNow(); err != nil {
						a.logger.Error("initial replay", zap.Error(err))
					}
				}()
			}

			a.logger.Info("zonesentinel is running, press Ctrl+C to stop", zap.String("cron", cfg.Schedule.Cron))
			<-ctx.Done()
			a.logger.Info("shutdown signal received, stopping")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run one replay immediately")
	return cmd
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recently recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recorder.NewSQLiteRecorder(a.cfg.Database.SQLitePath, a.logger)
			if err != nil {
				return err
			}
			defer rec.Close()
			runs, err := rec.Recent(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSYMBOL\tTF\tSTARTED\tTRADES\tWIN%\tNET\tMAXDD%\tBALANCE")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.1f\t%+.2f\t%.2f\t%s\n",
					r.RunID, r.Symbol, r.Driver, r.StartedAt.Format(time.RFC3339),
					r.Trades, r.WinRate*100, r.NetProfit, r.MaxDrawdown*100, r.FinalBalance)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

// buildScheduler wires provider, collector, engine, recorder and notifier.
// The returned func releases the recorder.
func (a *app) buildScheduler(ctx context.Context, m *metrics.Metrics, record, notify bool) (*scheduler.Scheduler, func(), error) {
	cfg := a.cfg

	var provider collector.Provider
	switch cfg.Data.Source {
	case "mock":
		driver, err := cfg.Driver()
		if err != nil {
			return nil, nil, err
		}
		provider = &collector.MockProvider{Base: driver, Count: cfg.Data.MockBars, Price: 100, Seed: cfg.Data.MockSeed}
	default:
		provider = collector.NewCSVProvider(cfg.Data.Dir)
	}
	a.logger.Info("data source", zap.String("provider", provider.Name()), zap.String("symbol", cfg.Symbol))

	col := collector.NewCollector(provider, cfg.Symbol, a.logger)
	col.Derive = !cfg.Data.DisableDerive

	ec, err := cfg.Engine()
	if err != nil {
		return nil, nil, err
	}
	eng := engine.New(ec, a.logger, m)

	tfs, err := cfg.Timeframes()
	if err != nil {
		return nil, nil, err
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	closeFn := func() {}
	if record && cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, a.logger)
		if err != nil {
			a.logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		} else {
			rec = sr
			closeFn = func() { _ = sr.Close() }
		}
	}

	var n notifier.Notifier
	if notify && cfg.Telegram.BotToken != "" {
		n = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, a.logger)
	}

	return scheduler.NewScheduler(ctx, col, eng, ec.Driver, tfs, n, rec, a.logger), closeFn, nil
}

func printResult(cmd *cobra.Command, res *engine.Result) {
	st := res.Stats
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "run\t%s\n", res.RunID)
	fmt.Fprintf(w, "symbol\t%s %s\n", res.Symbol, res.Driver)
	if n := len(res.Equity); n > 0 {
		fmt.Fprintf(w, "window\t%s .. %s (%d bars)\n",
			res.Equity[0].Time.Format(time.RFC3339), res.Equity[n-1].Time.Format(time.RFC3339), n)
	}
	fmt.Fprintf(w, "zones\t%d\n", st.ZonesFound)
	fmt.Fprintf(w, "signals / rejections\t%d / %d\n", st.Signals, st.Rejections)
	fmt.Fprintf(w, "trades\t%d (won %d, lost %d, %.1f%%)\n", st.Trades, st.Wins, st.Losses, st.WinRate*100)
	fmt.Fprintf(w, "profit factor\t%.2f\n", st.ProfitFactor)
	fmt.Fprintf(w, "net profit\t%+.2f (%+.2f%%)\n", st.NetProfit, st.ReturnPct)
	fmt.Fprintf(w, "max drawdown\t%.2f%%\n", st.MaxDrawdown*100)
	fmt.Fprintf(w, "final balance\t%s\n", res.FinalBalance.StringFixed(2))
	fmt.Fprintf(w, "took\t%s\n", res.Duration.Round(time.Millisecond))
	_ = w.Flush()
}
