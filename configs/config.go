package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// KafkaConfig describes how to reach the ingress/builder event log.
type KafkaConfig struct {
	Brokers  string `mapstructure:"brokers"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"clientId"`
}

type S3StorageConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	Prefix          string `mapstructure:"prefix"`
}

type IngressConfig struct {
	Enabled                        bool     `mapstructure:"enabled"`
	ListenAddr                     string   `mapstructure:"listenAddr"`
	ChainID                        uint64   `mapstructure:"chainId"`
	EntryPoints                    []string `mapstructure:"entryPoints"`
	ValidateUserOperationTimeoutMs int      `mapstructure:"validateUserOperationTimeoutMs"`
	SimulationURL                  string   `mapstructure:"simulationUrl"`
	BundleStoreURL                 string   `mapstructure:"bundleStoreUrl"`
	BundlerPrivateKey              string   `mapstructure:"bundlerPrivateKey"`
}

type BundleStoreConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	IncludedGracePeriod int `mapstructure:"includedGracePeriodSeconds"`
}

type AuditConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	HistoryCacheSize int `mapstructure:"historyCacheSize"`
}

type UserOpBundlerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BatchSize      int    `mapstructure:"batchSize"`
	BatchTimeoutMs int    `mapstructure:"batchTimeoutMs"`
	Beneficiary    string `mapstructure:"beneficiary"`
}

type MaintenanceConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	IntervalMs         int  `mapstructure:"intervalMs"`
	PerAccountCap      int  `mapstructure:"perAccountCap"`
	GlobalCap          int  `mapstructure:"globalCap"`
	BundleTimeoutSeconds int `mapstructure:"bundleTimeoutSeconds"`
}

type Config struct {
	Log            LogConfig           `mapstructure:"log"`
	Kafka          KafkaConfig         `mapstructure:"kafka"`
	S3             S3StorageConfig     `mapstructure:"s3"`
	Ingress        IngressConfig       `mapstructure:"ingress"`
	BundleStore    BundleStoreConfig   `mapstructure:"bundleStore"`
	Audit          AuditConfig         `mapstructure:"audit"`
	UserOpBundler  UserOpBundlerConfig `mapstructure:"userOpBundler"`
	Maintenance    MaintenanceConfig   `mapstructure:"maintenance"`
}

var Cfg Config

// LoadConfig reads the file at cfgFile, or, when cfgFile is empty,
// configs/config.yml merged with configs/secrets.yml if present, and
// applies TIPS_INGRESS_-prefixed environment variable overrides on top.
func LoadConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file, %s", err)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("./configs")

		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file, %s", err)
		}

		viper.SetConfigName("secrets")
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error loading secrets file: %v", err)
			}
		}
	}

	// TIPS_INGRESS_KAFKA_BROKERS -> kafka.brokers
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetEnvPrefix("TIPS_INGRESS")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.Unmarshal(&Cfg); err != nil {
		return fmt.Errorf("error unmarshalling config: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("ingress.listenAddr", ":8645")
	viper.SetDefault("ingress.validateUserOperationTimeoutMs", 2000)
	viper.SetDefault("ingress.bundleStoreUrl", "http://localhost:8646")
	viper.SetDefault("bundleStore.includedGracePeriodSeconds", 30)
	viper.SetDefault("audit.historyCacheSize", 10000)
	viper.SetDefault("userOpBundler.batchSize", 100)
	viper.SetDefault("userOpBundler.batchTimeoutMs", 1000)
	viper.SetDefault("maintenance.intervalMs", 1000)
	viper.SetDefault("maintenance.perAccountCap", 8)
	viper.SetDefault("maintenance.globalCap", 5000)
	viper.SetDefault("maintenance.bundleTimeoutSeconds", 86400)
}
