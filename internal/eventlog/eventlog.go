// Package eventlog wraps github.com/twmb/franz-go the way the
// teacher's internal/publisher/newkafka wraps it for producing,
// generalized with a consumer-group side used by the Bundle Store and
// the Audit Pipeline.
package eventlog

// Topic names, per spec §6.
const (
	TopicIngressBundles = "tips-ingress-bundles"
	TopicUserOperations = "tips-user-operation"
	TopicBuilderEvents  = "tips-builder-events"
)

// Config describes how to reach the partitioned event log.
type Config struct {
	Brokers  []string
	Username string
	Password string
	ClientID string
}
