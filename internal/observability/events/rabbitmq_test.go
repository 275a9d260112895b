package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"StarkProof/internal/proofs"
)

type fakeChannel struct {
	mu         sync.Mutex
	exchange   string
	kind       string
	declareErr error
	published  []amqp.Publishing
	keys       []string
	block      chan struct{}
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.exchange = name
	c.kind = kind
	return c.declareErr
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, msg)
	c.keys = append(c.keys, key)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func TestPublisherDeclaresTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisherWithChannel(ch, RabbitMQConfig{})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer p.Close()
	if ch.exchange != "starkproof.events" || ch.kind != amqp.ExchangeTopic {
		t.Fatalf("unexpected exchange declaration: %s %s", ch.exchange, ch.kind)
	}
}

func TestPublisherDeclareFailure(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("denied")}
	if _, err := NewPublisherWithChannel(ch, RabbitMQConfig{}); err == nil {
		t.Fatalf("expected declare error")
	}
	if !ch.closed {
		t.Fatalf("channel should be closed after declare failure")
	}
}

func TestSinkPublishesJSONRecords(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisherWithChannel(ch, RabbitMQConfig{RoutingKey: "proofs"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	p.Sink().Record(context.Background(), proofs.Record{
		Time:      time.Unix(1700000000, 0).UTC(),
		RequestID: "req-1",
		Secret:    "abc",
		Outcome:   proofs.OutcomeSuccess,
		Digest:    "0x01",
	})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if ch.count() != 1 {
		t.Fatalf("expected one message, got %d", ch.count())
	}
	msg := ch.published[0]
	if ch.keys[0] != "proofs" || msg.ContentType != "application/json" || msg.MessageId != "req-1" {
		t.Fatalf("unexpected message envelope: key=%s %+v", ch.keys[0], msg)
	}
	var rec proofs.Record
	if err := json.Unmarshal(msg.Body, &rec); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if rec.Secret != "abc" || rec.Outcome != proofs.OutcomeSuccess {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !ch.closed {
		t.Fatalf("channel should be closed")
	}
}

func TestSinkDropsWhenBufferFull(t *testing.T) {
	block := make(chan struct{})
	ch := &fakeChannel{block: block}
	var mu sync.Mutex
	dropped := 0
	p, err := NewPublisherWithChannel(ch, RabbitMQConfig{Buffer: 1}, WithDropHook(func() {
		mu.Lock()
		dropped++
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	sink := p.Sink()
	sink.Record(context.Background(), proofs.Record{RequestID: "1"})
	deadline := time.Now().Add(time.Second)
	for len(p.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	sink.Record(context.Background(), proofs.Record{RequestID: "2"})
	sink.Record(context.Background(), proofs.Record{RequestID: "3"})

	close(block)
	_ = p.Close()

	mu.Lock()
	defer mu.Unlock()
	if dropped != 1 {
		t.Fatalf("expected 1 dropped record, got %d", dropped)
	}
	if ch.count() != 2 {
		t.Fatalf("expected 2 published records, got %d", ch.count())
	}
	// Records after Close are ignored.
	sink.Record(context.Background(), proofs.Record{RequestID: "late"})
}
