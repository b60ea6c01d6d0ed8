package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configs "github.com/base/tips/configs"
	customLogger "github.com/base/tips/internal/log"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "tips",
		Short: "Transaction Inclusion & Prioritization Stack",
		Long:  "TIPS runs the ingress, bundle store, audit, UserOp bundler, and maintenance components of a private L2 sequencer's mempool.",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yml)")
	rootCmd.PersistentFlags().String("kafka-brokers", "", "comma-separated Kafka broker addresses")
	rootCmd.PersistentFlags().String("log-level", "", "log level to use for the application")
	rootCmd.PersistentFlags().Bool("log-prettify", false, "whether to prettify the log output")
	viper.BindPFlag("kafka.brokers", rootCmd.PersistentFlags().Lookup("kafka-brokers"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-prettify"))

	// The UserOp Bundler has no standalone daemon: its Batcher runs
	// in-process with ingress (see cmd/ingress.go), fed directly by
	// EthAPI.SendUserOperation rather than off its own event log
	// topic — spec.md names no dedicated wire transport for raw
	// UserOperations between ingress and the bundler.
	//
	// Maintenance likewise has no standalone daemon: it sweeps the
	// Bundle Store's own *bundlestore.Catalog by reference, so it
	// runs in-process with bundlestore (see cmd/bundlestore.go)
	// rather than replaying the event log into a second copy of the
	// catalog.
	rootCmd.AddCommand(ingressCmd)
	rootCmd.AddCommand(bundleStoreCmd)
	rootCmd.AddCommand(auditCmd)
}

func initConfig() {
	if err := configs.LoadConfig(cfgFile); err != nil {
		panic(err)
	}
	customLogger.InitLogger()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM,
// mirroring the teacher's Orchestrator.Start shutdown wiring.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx
}
