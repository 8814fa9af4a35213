package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ethersync/ethersync/internal/blocksync"
	"github.com/ethersync/ethersync/internal/simulation"
)

// SimulateCommand constructs the simulate subcommand: a full run of the
// download pipeline against an in-memory peer network.
func SimulateCommand() *cobra.Command {
	var (
		height      int64
		seed        int64
		numHonest   int
		numSilent   int
		numCorrupt  int
		latency     time.Duration
		importDelay time.Duration
		headersOnly bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "run the download pipeline against an in-memory peer network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			chain := simulation.GenerateChain(height, seed)
			logger.Info("generated chain", "height", chain.Height(), "seed", seed)

			pool := blocksync.NewSyncPool(logger.With("module", "pool"))
			addPeers := func(n int, behavior simulation.Behavior) error {
				for i := 0; i < n; i++ {
					if err := pool.Add(simulation.NewPeer(chain, behavior, latency, pool)); err != nil {
						return err
					}
				}
				return nil
			}
			if err := addPeers(numHonest, simulation.Honest); err != nil {
				return err
			}
			if err := addPeers(numSilent, simulation.Silent); err != nil {
				return err
			}
			if err := addPeers(numCorrupt, simulation.Corrupt); err != nil {
				return err
			}

			syncConf := *conf.Sync
			if headersOnly {
				syncConf.BlockBodiesDownload = false
			}

			importer := simulation.NewImporter(
				logger.With("module", "importer"), 0, syncConf.BlockQueueLimit, importDelay)
			queue := blocksync.NewSyncQueue(
				logger.With("module", "queue"), chain.Genesis(), chain.Height(),
				syncConf.BlockBodiesDownload, syncConf.HeaderRequestTimeout)

			metrics := blocksync.NopMetrics()
			if conf.Instrumentation.Prometheus {
				metrics = blocksync.PrometheusMetrics(conf.Instrumentation.Namespace)
			}

			downloader := blocksync.NewDownloader(
				logger.With("module", "blocksync"), &syncConf, queue, pool,
				blocksync.NewBasicHeaderValidator(), importer, metrics)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := importer.Run(gctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-importer.Done():
						return nil
					case <-ticker.C:
						headerHeight, blockHeight := importer.Progress()
						logger.Info("sync progress",
							"headers", headerHeight, "blocks", blockHeight, "target", chain.Height())
					}
				}
			})

			if conf.Instrumentation.Prometheus {
				srv := &http.Server{
					Addr:    conf.Instrumentation.PrometheusListenAddr,
					Handler: promhttp.Handler(),
				}
				g.Go(func() error {
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					sctx, scancel := context.WithTimeout(context.Background(), time.Second)
					defer scancel()
					return srv.Shutdown(sctx)
				})
			}

			if err := downloader.Start(ctx); err != nil {
				return err
			}

			select {
			case <-importer.Done():
				headerHeight, blockHeight := importer.Progress()
				logger.Info("download complete", "headers", headerHeight, "blocks", blockHeight)
			case <-ctx.Done():
				logger.Info("interrupted")
			}

			downloader.Stop()
			downloader.Wait()
			pool.Close()
			cancel()
			if err := g.Wait(); err != nil {
				return err
			}

			return importer.Violation()
		},
	}

	cmd.Flags().Int64Var(&height, "height", 2000, "target chain height")
	cmd.Flags().Int64Var(&seed, "seed", 42, "chain generation seed")
	cmd.Flags().IntVar(&numHonest, "honest-peers", 5, "number of honest peers")
	cmd.Flags().IntVar(&numSilent, "silent-peers", 0, "number of peers that never answer")
	cmd.Flags().IntVar(&numCorrupt, "corrupt-peers", 0, "number of peers serving broken header chains")
	cmd.Flags().DurationVar(&latency, "latency", 20*time.Millisecond, "simulated peer response latency")
	cmd.Flags().DurationVar(&importDelay, "import-delay", time.Millisecond, "simulated import time per block")
	cmd.Flags().BoolVar(&headersOnly, "headers-only", false, "skip body download (light sync)")

	return cmd
}
