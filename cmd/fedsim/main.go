package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/orchestrator"
	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/pkg/checkpoint"
	"github.com/absmach/fedsim/simulation"
	"github.com/absmach/fedsim/strategy"
	"github.com/absmach/fedsim/strategy/middleware"
)

const (
	svcName = "fedsim"
	pathEnv = ".env"
)

type envConfig struct {
	LogLevel      string        `env:"FEDSIM_LOG_LEVEL"      envDefault:"info"`
	InstanceID    string        `env:"FEDSIM_INSTANCE_ID"`
	HTTPPort      string        `env:"FEDSIM_HTTP_PORT"      envDefault:"7171"`
	MQTTAddress   string        `env:"FEDSIM_MQTT_ADDRESS"`
	MQTTQoS       uint8         `env:"FEDSIM_MQTT_QOS"       envDefault:"1"`
	MQTTTimeout   time.Duration `env:"FEDSIM_MQTT_TIMEOUT"   envDefault:"30s"`
	CheckpointDir string        `env:"FEDSIM_CHECKPOINT_DIR"`
}

type simConfig struct {
	Clients      int     `toml:"clients"`
	Rounds       int     `toml:"rounds"`
	FitFraction  float64 `toml:"fit_fraction"`
	EvalFraction float64 `toml:"eval_fraction"`
	Seed         int64   `toml:"seed"`
	LocalEpochs  int     `toml:"local_epochs"`
	LearningRate float64 `toml:"learning_rate"`
	SamplesMin   int     `toml:"samples_min"`
	SamplesMax   int     `toml:"samples_max"`
	Dim          int     `toml:"dim"`
	CallTimeout  string  `toml:"call_timeout"`
	Concurrency  int     `toml:"concurrency"`
}

func defaultSimConfig() simConfig {
	return simConfig{
		Clients:      10,
		Rounds:       20,
		FitFraction:  1.0,
		EvalFraction: 0.5,
		Seed:         42,
		LocalEpochs:  2,
		LearningRate: 0.01,
		SamplesMin:   50,
		SamplesMax:   200,
		Dim:          4,
		Concurrency:  8,
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "fedsim",
		Short: "Federated averaging simulator",
		Long:  `fedsim drives federated training rounds over simulated clients and aggregates their updates with FedAvg.`,
	}
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRunCmd() *cobra.Command {
	var configPath string
	sim := defaultSimConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a federated simulation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				data, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("failed to read config file: %w", err)
				}
				fileCfg := defaultSimConfig()
				if err := toml.Unmarshal(data, &fileCfg); err != nil {
					return fmt.Errorf("failed to parse config file: %w", err)
				}
				// Flags set on the command line win over the file.
				merged := fileCfg
				if cmd.Flags().Changed("clients") {
					merged.Clients = sim.Clients
				}
				if cmd.Flags().Changed("rounds") {
					merged.Rounds = sim.Rounds
				}
				if cmd.Flags().Changed("fit-fraction") {
					merged.FitFraction = sim.FitFraction
				}
				if cmd.Flags().Changed("eval-fraction") {
					merged.EvalFraction = sim.EvalFraction
				}
				if cmd.Flags().Changed("seed") {
					merged.Seed = sim.Seed
				}
				sim = merged
			}

			return runSimulation(cmd.Context(), sim)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML simulation config")
	cmd.Flags().IntVar(&sim.Clients, "clients", sim.Clients, "number of virtual clients")
	cmd.Flags().IntVar(&sim.Rounds, "rounds", sim.Rounds, "number of federated rounds")
	cmd.Flags().Float64Var(&sim.FitFraction, "fit-fraction", sim.FitFraction, "fraction of clients trained per round")
	cmd.Flags().Float64Var(&sim.EvalFraction, "eval-fraction", sim.EvalFraction, "fraction of clients evaluated per round, 0 disables")
	cmd.Flags().Int64Var(&sim.Seed, "seed", sim.Seed, "seed for client sampling and data synthesis")

	return cmd
}

func runSimulation(ctx context.Context, sim simConfig) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var callTimeout time.Duration
	if sim.CallTimeout != "" {
		d, err := time.ParseDuration(sim.CallTimeout)
		if err != nil {
			return fmt.Errorf("failed to parse call timeout: %w", err)
		}
		callTimeout = d
	}

	rng := rand.New(rand.NewSource(sim.Seed))
	trueW := make([]float64, sim.Dim)
	for i := range trueW {
		trueW[i] = rng.NormFloat64()
	}
	trueB := rng.NormFloat64()

	factory := func(index int) (client.Trainer, int, error) {
		n := sim.SamplesMin + rng.Intn(sim.SamplesMax-sim.SamplesMin+1)
		shift := float64(index%5) - 2.0
		ds := makeDataset(rng, n, sim.Dim, trueW, trueB, shift)

		return newLinearTrainer(ds, sim.LocalEpochs, sim.LearningRate), n, nil
	}

	// Held-out test set for the server-side evaluation hook.
	testSet := makeDataset(rng, 500, sim.Dim, trueW, trueB, 0)
	testTrainer := newLinearTrainer(testSet, 0, 0)
	hook := func(ctx context.Context, round int, p params.Parameters) (map[string]float64, error) {
		res, err := testTrainer.Evaluate(ctx, p, nil)
		if err != nil {
			return nil, err
		}

		return map[string]float64{"server_test_loss": res.Loss}, nil
	}

	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: svcName,
		Subsystem: "strategy",
		Name:      "request_count",
		Help:      "Number of strategy operations.",
	}, []string{"method"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: svcName,
		Subsystem: "strategy",
		Name:      "request_latency_microseconds",
		Help:      "Total duration of strategy operations in microseconds.",
	}, []string{"method"})
	tracer := noop.NewTracerProvider().Tracer(svcName)

	opts := []simulation.Option{
		simulation.WithLogger(logger),
		simulation.WithEvalHook(hook),
		simulation.WithStrategyDecorator(func(s strategy.Strategy) strategy.Strategy {
			return middleware.Tracing(tracer, s)
		}),
		simulation.WithStrategyDecorator(func(s strategy.Strategy) strategy.Strategy {
			return middleware.Metrics(counter, latency, s)
		}),
	}

	if cfg.MQTTAddress != "" {
		obs, err := orchestrator.NewMQTTObserver(cfg.MQTTAddress, svcName+"-"+cfg.InstanceID, svcName, cfg.MQTTQoS, cfg.MQTTTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to connect mqtt observer: %w", err)
		}
		defer func() {
			if err := obs.Disconnect(context.Background()); err != nil {
				logger.Error("failed to disconnect mqtt observer", slog.Any("error", err))
			}
		}()
		opts = append(opts, simulation.WithObserver(obs))
	}

	runID := uuid.NewString()
	opts = append(opts, simulation.WithRunID(runID))

	if cfg.CheckpointDir != "" {
		store, err := checkpoint.NewStore(cfg.CheckpointDir+"/rounds", cfg.CheckpointDir+"/models")
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		opts = append(opts, simulation.WithObserver(checkpoint.NewObserver(store, runID, logger)))
	}

	initial := pack(make([]float64, sim.Dim), 0)
	driver := simulation.NewDriver(simulation.Config{
		NumClients:       sim.Clients,
		Rounds:           sim.Rounds,
		FitFraction:      sim.FitFraction,
		EvalFraction:     sim.EvalFraction,
		Seed:             sim.Seed,
		ConcurrencyLimit: sim.Concurrency,
		CallTimeout:      callTimeout,
		FitConfig:        client.Config{"local_epochs": sim.LocalEpochs},
	}, initial, factory, opts...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}

	g.Go(func() error {
		logger.Info("Metrics server started", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	g.Go(func() error {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		state, records, err := driver.Run(ctx)
		if err != nil {
			return err
		}

		args := []any{
			slog.String("run_id", driver.RunID()),
			slog.Int("rounds", state.Round),
		}
		if len(records) > 0 {
			last := records[len(records)-1]
			args = append(args,
				slog.Any("final_metrics", last.Metrics),
				slog.Any("server_metrics", last.HookMetrics),
			)
		}
		logger.Info("Simulation completed", args...)

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error", svcName), slog.Any("error", err))

		return err
	}

	return nil
}
