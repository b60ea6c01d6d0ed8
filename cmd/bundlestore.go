package cmd

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configs "github.com/base/tips/configs"
	"github.com/base/tips/internal/bundlestore"
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/maintenance"
)

var bundleStoreCmd = &cobra.Command{
	Use:   "bundlestore",
	Short: "run the bundle store daemon",
	Long:  "Consumes the ingress and builder event logs into the live bundle catalog, serves it to the block builder over JSON-RPC, and sweeps it on a timer.",
	Run:   runBundleStore,
}

func runBundleStore(cmd *cobra.Command, args []string) {
	cfg := configs.Cfg.BundleStore
	if !cfg.Enabled {
		log.Fatal().Msg("bundleStore.enabled is false")
	}

	serveMetrics(":2113")

	elCfg := eventlogConfig()
	ingressConsumer, err := eventlog.NewConsumer(elCfg, "tips-bundlestore", eventlog.TopicIngressBundles)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create ingress consumer")
	}
	defer ingressConsumer.Close()

	builderConsumer, err := eventlog.NewConsumer(elCfg, "tips-bundlestore", eventlog.TopicBuilderEvents)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create builder consumer")
	}
	defer builderConsumer.Close()

	catalog := bundlestore.NewCatalog()
	store := bundlestore.NewStore(catalog, ingressConsumer, builderConsumer, configs.Cfg.Ingress.ChainID, time.Duration(cfg.IncludedGracePeriod)*time.Second)

	ctx := signalContext()

	if mcfg := configs.Cfg.Maintenance; mcfg.Enabled {
		producer, err := eventlog.NewProducer(elCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event log producer for maintenance sweeper")
		}
		defer producer.Close()

		sweeper := maintenance.NewSweeper(catalog, producer, maintenance.Config{
			Interval:      time.Duration(mcfg.IntervalMs) * time.Millisecond,
			Timeout:       time.Duration(mcfg.BundleTimeoutSeconds) * time.Second,
			PerAccountCap: mcfg.PerAccountCap,
			GlobalCap:     mcfg.GlobalCap,
		})
		go func() {
			if err := sweeper.Run(ctx); err != nil {
				log.Error().Err(err).Msg("maintenance sweeper exited")
			}
		}()
	}

	if err := bundlestore.RunServer(ctx, ":8646", store); err != nil {
		log.Fatal().Err(err).Msg("bundle store server exited with error")
	}
}
