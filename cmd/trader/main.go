package main

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"trader/internal/account"
	"trader/internal/calendar"
	"trader/internal/config"
	"trader/internal/driver"
	"trader/internal/engine"
	"trader/internal/metrics"
	"trader/internal/repository"
	"trader/internal/selector"
	"trader/internal/sink"
	"trader/internal/util"
	"trader/types"
)

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "run configuration")
	flag.Parse()

	log := util.NewLogger("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Logger()

	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("shutting down")
			return
		}
		log.Error().Err(err).Msg("run failed")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	traderCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	rules, err := cfg.CalendarRules()
	if err != nil {
		return err
	}
	cal, err := calendar.New(rules...)
	if err != nil {
		return err
	}

	db, err := repository.NewDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	accountCfg, err := cfg.AccountConfig()
	if err != nil {
		return err
	}
	accountOpts := []account.Option{account.WithLogger(log)}
	if cfg.Sinks.FillsPath != "" {
		fills, err := sink.NewJSONLRecorder(cfg.Sinks.FillsPath, log)
		if err != nil {
			return err
		}
		defer fills.Close()
		accountOpts = append(accountOpts, account.WithFillRecorder(fills))
	}
	acc, err := account.NewSimAccount(accountCfg, db, accountOpts...)
	if err != nil {
		return err
	}

	selectors, err := buildSelectors(cfg, traderCfg.SecurityList, db, log)
	if err != nil {
		return err
	}

	opts := []engine.Option{engine.WithLogger(log), engine.WithRunRecorder(db)}
	if cfg.Sinks.CSVPath != "" {
		csv, err := sink.NewCSVFile(cfg.Sinks.CSVPath)
		if err != nil {
			return err
		}
		defer csv.Close()
		opts = append(opts, engine.WithListener("csv", csv))
	}
	if len(cfg.Sinks.Kafka.Brokers) > 0 {
		publisher := sink.NewKafkaPublisher(cfg.Sinks.Kafka.Brokers, cfg.Sinks.Kafka.Topic, traderCfg.Name, log)
		defer publisher.Close()
		opts = append(opts, engine.WithListener("kafka", publisher))
	}
	if cfg.Sinks.StoreSignals {
		opts = append(opts, engine.WithListener("db", repository.NewSignalStore(db, traderCfg.Name)))
	}

	trader, err := engine.NewTrader(traderCfg, cal, acc, selectors, opts...)
	if err != nil {
		return err
	}

	if traderCfg.RealTime {
		err = driver.NewLive(trader, cal, driver.WithLogger(log)).Run(ctx)
	} else {
		err = trader.Run(ctx)
	}
	if err != nil {
		return err
	}

	if report := acc.Report(); report != nil {
		report.Print(os.Stdout)
	}
	return nil
}

// buildSelectors creates one selector per configured entry, all reading
// their data from db.
func buildSelectors(cfg *config.Config, securities []types.SecurityID, db *repository.Database, log zerolog.Logger) (map[types.Level][]engine.Selector, error) {
	selectors := make(map[types.Level][]engine.Selector)
	for _, sc := range cfg.Selectors {
		level, err := types.ParseLevel(sc.Level)
		if err != nil {
			return nil, err
		}
		opts := []selector.Option{
			selector.WithLogger(log),
			selector.WithMustFactors(buildFactors(sc.Must, level, securities, db)...),
			selector.WithScoreFactors(buildFactors(sc.Score, level, securities, db)...),
		}
		if sc.Threshold > 0 {
			opts = append(opts, selector.WithThreshold(sc.Threshold))
		}
		sel, err := selector.New(level, opts...)
		if err != nil {
			return nil, err
		}
		selectors[level] = append(selectors[level], sel)
		log.Info().
			Str("level", level.String()).
			Int("must", len(sc.Must)).
			Int("score", len(sc.Score)).
			Msg("selector ready")
	}
	return selectors, nil
}

func buildFactors(factors []config.Factor, level types.Level, securities []types.SecurityID, db *repository.Database) []selector.Factor {
	var out []selector.Factor
	for _, f := range factors {
		switch f.Kind {
		case config.FactorStored:
			out = append(out, selector.NewStoredFactor(f.Name, level, db))
		case config.FactorDonchianBreakout:
			out = append(out, selector.NewDonchianBreakout(level, securities, f.Window, db))
		case config.FactorDonchianPosition:
			out = append(out, selector.NewDonchianPosition(level, securities, f.Window, db))
		}
	}
	return out
}
