package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configs "github.com/base/tips/configs"
	"github.com/base/tips/internal/audit"
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/objectstore"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "run the audit pipeline daemon",
	Long:  "Merges the ingress and builder event streams into a per-entity history archived to object storage, and maintains the transaction-hash reverse index.",
	Run:   runAudit,
}

func runAudit(cmd *cobra.Command, args []string) {
	cfg := configs.Cfg.Audit
	if !cfg.Enabled {
		log.Fatal().Msg("audit.enabled is false")
	}

	serveMetrics(":2114")

	elCfg := eventlogConfig()
	ingressConsumer, err := eventlog.NewConsumer(elCfg, "tips-audit", eventlog.TopicIngressBundles, eventlog.TopicUserOperations)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create ingress+userop consumer")
	}
	defer ingressConsumer.Close()

	builderConsumer, err := eventlog.NewConsumer(elCfg, "tips-audit", eventlog.TopicBuilderEvents)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create builder consumer")
	}
	defer builderConsumer.Close()

	store, err := objectstore.NewS3Client(objectstore.Config{
		Bucket:          configs.Cfg.S3.Bucket,
		Region:          configs.Cfg.S3.Region,
		Endpoint:        configs.Cfg.S3.Endpoint,
		AccessKeyID:     configs.Cfg.S3.AccessKeyID,
		SecretAccessKey: configs.Cfg.S3.SecretAccessKey,
		Prefix:          configs.Cfg.S3.Prefix,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create object store client")
	}

	pipeline, err := audit.NewPipeline(ingressConsumer, builderConsumer, store, configs.Cfg.Ingress.ChainID, cfg.HistoryCacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create audit pipeline")
	}

	ctx := signalContext()
	if err := audit.RunServer(ctx, pipeline); err != nil {
		log.Fatal().Err(err).Msg("audit server exited with error")
	}
}
