package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Record is a decoded position in a partition, handed to consumers so
// they can commit only after they have durably applied it — the
// bundle store and audit pipeline both need to control the commit
// point themselves rather than auto-committing.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time

	raw *kgo.Record
}

// Consumer wraps a franz-go consumer group client. Callers drive it
// with Poll/CommitRecords in a loop; within a single partition,
// records are delivered in publication order (spec §5).
type Consumer struct {
	client *kgo.Client
}

func NewConsumer(cfg Config, group string, topics ...string) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("eventlog: no brokers configured")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.DialTimeout(5 * time.Second),
		kgo.SessionTimeout(30 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: failed to create consumer client: %w", err)
	}

	return &Consumer{client: client}, nil
}

// Poll blocks until at least one record is available, ctx is
// cancelled, or a fatal fetch error occurs. It never drops messages:
// callers that fall behind simply take longer between Poll calls,
// matching the log's backpressure contract in spec §5.
func (c *Consumer) Poll(ctx context.Context) ([]Record, error) {
	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, fmt.Errorf("eventlog: consumer closed")
	}

	var records []Record
	fetches.EachRecord(func(r *kgo.Record) {
		records = append(records, Record{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Key:       r.Key,
			Value:     r.Value,
			Timestamp: r.Timestamp,
			raw:       r,
		})
	})

	if len(records) == 0 {
		if errs := fetches.Errors(); len(errs) > 0 {
			return nil, fmt.Errorf("eventlog: poll fetch error: %v", errs[0].Err)
		}
	}

	return records, nil
}

// CommitRecords advances the consumer group's committed offsets past
// the given records. Callers must only commit a record after they
// have durably applied its effect.
func (c *Consumer) CommitRecords(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	raw := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		if r.raw != nil {
			raw = append(raw, r.raw)
		}
	}
	if err := c.client.CommitRecords(ctx, raw...); err != nil {
		return fmt.Errorf("eventlog: commit failed: %w", err)
	}
	return nil
}

func (c *Consumer) Close() {
	c.client.Close()
}
