package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func mockConfig() *sarama.Config {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Errors = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

func TestPublisher_SendsKeyedJSON(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "delivery-resolutions" {
			return fmt.Errorf("topic=%q", msg.Topic)
		}
		k, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(k) != "86603386fffffff|8642ca85fffffff" {
			return fmt.Errorf("key=%q", k)
		}
		v, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var ev Event
		if err := json.Unmarshal(v, &ev); err != nil {
			return err
		}
		if ev.Kind != KindResolved || ev.Duration != 27.5 || !ev.Exist || ev.TS.IsZero() {
			return fmt.Errorf("event=%+v", ev)
		}
		return nil
	})

	p := newWithProducer(mp, "delivery-resolutions", 4, nil)
	p.Publish(Event{
		ID:          "req-1",
		Kind:        KindResolved,
		Source:      "86603386fffffff",
		Destination: "8642ca85fffffff",
		Duration:    27.5,
		Exist:       true,
	})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisher_ProducerErrorsDoNotBlock(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	mp.ExpectInputAndFail(errors.New("broker down"))
	mp.ExpectInputAndSucceed()

	p := newWithProducer(mp, "t", 4, nil)
	p.Publish(Event{Kind: KindCommitted, Source: "a", Destination: "b"})
	p.Publish(Event{Kind: KindCommitted, Source: "a", Destination: "b"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// blockingProducer never drains Input so the publisher queue fills up.
type blockingProducer struct {
	sarama.AsyncProducer
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func (b *blockingProducer) Input() chan<- *sarama.ProducerMessage { return b.input }
func (b *blockingProducer) Errors() <-chan *sarama.ProducerError  { return b.errors }

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	bp := &blockingProducer{
		input:  make(chan *sarama.ProducerMessage),
		errors: make(chan *sarama.ProducerError),
	}
	p := newWithProducer(bp, "t", 1, nil)

	for range 10 {
		p.Publish(Event{Kind: KindResolved})
	}
	// at most one in the queue and one held by the send loop
	if p.Dropped() < 8 {
		t.Fatalf("dropped=%d want >= 8", p.Dropped())
	}
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Publish(Event{})
}
