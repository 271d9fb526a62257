package kafka

import "time"

type CommitConfig struct {
	Enabled bool

	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool

	// Number of recently applied event ids remembered for redelivery dedupe.
	DedupeSize int
}

// DefaultConfig fills the consumer-group timings; callers set brokers, topic and group.
func DefaultConfig() CommitConfig {
	return CommitConfig{
		Topic:            "delivery-commits",
		GroupID:          "graph-committer",
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    true,
		DedupeSize:       8192,
	}
}
