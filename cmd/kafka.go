package cmd

import (
	"strings"

	configs "github.com/base/tips/configs"
	"github.com/base/tips/internal/eventlog"
)

// eventlogConfig maps configs.KafkaConfig onto eventlog.Config, the
// shape franz-go's client options need.
func eventlogConfig() eventlog.Config {
	k := configs.Cfg.Kafka
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return eventlog.Config{
		Brokers:  brokers,
		Username: k.Username,
		Password: k.Password,
		ClientID: k.ClientID,
	}
}
