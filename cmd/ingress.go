package cmd

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configs "github.com/base/tips/configs"
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/ingress"
	"github.com/base/tips/internal/tipstypes"
	"github.com/base/tips/internal/useropbundler"
)

var ingressCmd = &cobra.Command{
	Use:   "ingress",
	Short: "run the ingress JSON-RPC daemon",
	Long:  "Terminates the client-facing eth_sendBundle/eth_sendRawTransaction/eth_sendUserOperation surface and publishes admitted submissions onto the ingress event log.",
	Run:   runIngress,
}

func runIngress(cmd *cobra.Command, args []string) {
	cfg := configs.Cfg.Ingress
	if !cfg.Enabled {
		log.Fatal().Msg("ingress.enabled is false")
	}

	serveMetrics(":2112")

	producer, err := eventlog.NewProducer(eventlogConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event log producer")
	}
	defer producer.Close()

	entryPoints := make([]tipstypes.Address, len(cfg.EntryPoints))
	for i, ep := range cfg.EntryPoints {
		entryPoints[i] = common.HexToAddress(ep)
	}

	serverCfg := ingress.Config{
		ListenAddr:                   cfg.ListenAddr,
		ChainID:                      cfg.ChainID,
		EntryPoints:                  entryPoints,
		ValidateUserOperationTimeout: time.Duration(cfg.ValidateUserOperationTimeoutMs) * time.Millisecond,
		BundlerAddress:               common.HexToAddress(configs.Cfg.UserOpBundler.Beneficiary),
	}

	sim := ingress.NewHTTPSimulationClient(cfg.SimulationURL)
	bundleLookup := ingress.NewHTTPBundleLookupClient(cfg.BundleStoreURL)

	var useropSvc *useropbundler.Service
	if configs.Cfg.UserOpBundler.Enabled {
		useropCfg := configs.Cfg.UserOpBundler
		useropSvc = useropbundler.NewService(
			useropCfg.BatchSize,
			time.Duration(useropCfg.BatchTimeoutMs)*time.Millisecond,
			common.HexToAddress(useropCfg.Beneficiary),
			nil,
			logFlushedBundlerTx,
			producer,
		)
	}

	ctx := signalContext()
	if err := ingress.RunServer(ctx, serverCfg, producer, sim, useropSvc, bundleLookup); err != nil {
		log.Fatal().Err(err).Msg("ingress server exited with error")
	}
}

// logFlushedBundlerTx is the UserOp Bundler's onFlush hook. Delivering
// the assembled handleOps transaction to the builder for insertion
// happens over a side channel SPEC_FULL leaves unspecified beyond
// builder.Client's read-side ListReadyBundles/PublishEvents contract,
// so this wiring logs the flushed transaction rather than submitting
// it anywhere.
func logFlushedBundlerTx(entryPoint tipstypes.Address, tx *useropbundler.BundlerTx) {
	log.Info().
		Str("entryPoint", entryPoint.Hex()).
		Str("hash", tx.Hash.Hex()).
		Int("ops", len(tx.Ops)).
		Msg("handleOps batch flushed")
}
