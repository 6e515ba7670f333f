package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spf13/cobra"

	"github.com/absmach/fedsim/client/api"
)

// newServeCmd exposes a single synthetic participant over HTTP so a
// coordinator holding a RemoteProxy can federate against real processes.
func newServeCmd() *cobra.Command {
	var (
		port    string
		samples int
		dim     int
		seed    int64
		epochs  int
		lr      float64
		shift   float64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one participant over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			g, ctx := errgroup.WithContext(ctx)

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

			rng := rand.New(rand.NewSource(seed))
			trueW := make([]float64, dim)
			for i := range trueW {
				trueW[i] = rng.NormFloat64()
			}
			ds := makeDataset(rng, samples, dim, trueW, rng.NormFloat64(), shift)
			trainer := newLinearTrainer(ds, epochs, lr)

			srv := &http.Server{
				Addr:    ":" + port,
				Handler: api.MakeHandler(trainer, logger),
			}

			g.Go(func() error {
				logger.Info("Participant started", slog.String("port", port), slog.Int("num_samples", samples))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}

				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()

				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil && err != context.Canceled {
				return fmt.Errorf("participant exited with error: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "7272", "HTTP port to serve on")
	cmd.Flags().IntVar(&samples, "samples", 100, "local dataset size")
	cmd.Flags().IntVar(&dim, "dim", 4, "feature dimension")
	cmd.Flags().Int64Var(&seed, "seed", 1, "seed for data synthesis")
	cmd.Flags().IntVar(&epochs, "epochs", 2, "default local epochs per fit")
	cmd.Flags().Float64Var(&lr, "lr", 0.01, "learning rate")
	cmd.Flags().Float64Var(&shift, "shift", 0, "feature distribution shift for non-IID data")

	return cmd
}
