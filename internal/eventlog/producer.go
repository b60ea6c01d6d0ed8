package eventlog

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

// Producer publishes at-least-once: Publish does not return until the
// broker has acknowledged the record, per spec §4.2/§5. Downstream
// consumers dedup by lifecycle.Event.EventKey, so the producer itself
// carries no idempotence beyond that.
type Producer struct {
	client *kgo.Client
}

func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("eventlog: no brokers configured")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "tips-ingress"
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.MaxBufferedRecords(1_000_000),
		kgo.ProducerBatchMaxBytes(16_000_000),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.DialTimeout(5 * time.Second),
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, kgo.SASL(plain.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsMechanism()))
		tlsDialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 5 * time.Second}}
		opts = append(opts, kgo.Dialer(tlsDialer.DialContext))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: failed to create producer client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("eventlog: failed to reach broker: %w", err)
	}

	return &Producer{client: client}, nil
}

// Publish blocks until the broker acknowledges the record or ctx is
// cancelled. It never returns success before the write is durable.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}

	resultCh := make(chan error, 1)
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		resultCh <- err
	})

	select {
	case err := <-resultCh:
		if err != nil {
			return fmt.Errorf("eventlog: publish to %s failed: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("eventlog: publish to %s cancelled: %w", topic, ctx.Err())
	}
}

func (p *Producer) Close() {
	p.client.Close()
}
