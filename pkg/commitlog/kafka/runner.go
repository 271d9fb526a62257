// Package kafka consumes commit events and applies them to the historical
// graph through the mutator, so commits can be made asynchronously by callers
// that resolved earlier.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/observability"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/mutator"
)

const (
	resultApplied   = "applied"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultError     = "error"
)

type Committer interface {
	Apply(ctx context.Context, pair model.LocationPair, exists bool, duration float64) (mutator.Action, error)
}

type CellValidator interface {
	Validate(cell model.SpatialCell) error
}

type Runner struct {
	log      *slog.Logger
	cfg      CommitConfig
	commit   Committer
	cells    CellValidator
	ms       *metricSet
	ids      *idDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	// Cells rejects events with malformed cell ids before they reach the store.
	Cells CellValidator
}

func New(cfg CommitConfig, c Committer, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		commit: c,
		cells:  opts.Cells,
		ms:     newMetricSet(opts.Register),
		ids:    newIDDedupe(cfg.DedupeSize),
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("commit-log runner disabled")
		return nil
	}
	if r.commit == nil {
		return errors.New("commit-log runner: committer is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup:   r.onAssign,
		cleanup: func(sarama.ConsumerGroupSession) { r.onRevoke() },
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("commit-log runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("commit-log runner stopped")
}

// Readiness reports whether the group currently owns any partitions.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (r *Runner) onAssign(sess sarama.ConsumerGroupSession) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(true)
	r.assign = map[int32]struct{}{}
	for _, parts := range sess.Claims() {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
}

func (r *Runner) onRevoke() {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(false)
	r.assign = map[int32]struct{}{}
}

// handleMessage returns an error only for transient failures; the message is
// then redelivered. Malformed or unappliable events are logged and skipped.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev CommitEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.reject(msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		r.reject(msg, "validate", err)
		return nil
	}
	pair := ev.Pair()
	if r.cells != nil {
		if err := errors.Join(r.cells.Validate(pair.Source), r.cells.Validate(pair.Destination)); err != nil {
			r.reject(msg, "validate", err)
			return nil
		}
	}

	if r.ids.seen(ev.ID) {
		r.record(resultDuplicate, start)
		return nil
	}

	action, err := r.commit.Apply(ctx, pair, ev.Exists, ev.PredictedDuration)
	switch {
	case err == nil:
		r.ids.mark(ev.ID)
		r.record(resultApplied, start)
		r.log.Debug("commit applied", "id", ev.ID, "pair", pair.String(), "action", string(action))
		return nil
	case permanent(err):
		// the same event would fail the same way on redelivery
		r.ids.mark(ev.ID)
		r.reject(msg, "apply", err)
		return nil
	default:
		r.record(resultError, start)
		return fmt.Errorf("apply commit %s: %w", ev.ID, err)
	}
}

func permanent(err error) bool {
	return errors.Is(err, model.ErrSourceNodeMissing) ||
		errors.Is(err, model.ErrEdgeNotFound) ||
		errors.Is(err, model.ErrInvalidCell) ||
		errors.Is(err, mutator.ErrInvalidDuration)
}

func (r *Runner) reject(msg *sarama.ConsumerMessage, stage string, err error) {
	r.ms.msgs.WithLabelValues(resultRejected).Inc()
	observability.IncCommitEvent(resultRejected)
	r.log.Warn("commit event rejected",
		"stage", stage, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
}

func (r *Runner) record(result string, start time.Time) {
	r.ms.msgs.WithLabelValues(result).Inc()
	r.ms.proc.Observe(time.Since(start).Seconds())
	observability.IncCommitEvent(result)
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
