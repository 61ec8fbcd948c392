// Package ingestion receives transaction delta notifications from the ledger
// collaborator over NATS JetStream and converts them into typed deltas.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// StreamName holds every transaction delta subject.
	StreamName = "FIN_TRANSACTIONS"

	subjectCreated = "fin.transactions.created.>"
	subjectUpdated = "fin.transactions.updated.>"
	subjectDeleted = "fin.transactions.deleted.>"
)

// RawDelta is an unparsed delta message. The shell validates and converts it
// into a ledger.Delta before it reaches the cube worker.
type RawDelta struct {
	Subject string
	Data    []byte
	AckFunc func()
	NakFunc func()
}

// SubjectConfig maps a NATS subject to a delta operation.
type SubjectConfig struct {
	Subject      string
	Operation    string
	ConsumerName string
}

// DefaultSubjects returns the delta subject configuration. One consumer per
// operation so each can scale and back off independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: subjectCreated, Operation: "created", ConsumerName: "cube-tx-created"},
		{Subject: subjectUpdated, Operation: "updated", ConsumerName: "cube-tx-updated"},
		{Subject: subjectDeleted, Operation: "deleted", ConsumerName: "cube-tx-deleted"},
	}
}

// ConnectNATS dials NATS and returns the connection plus a JetStream handle.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates the transaction delta stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"fin.transactions.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// DeltaSubscriber feeds raw delta messages into deltaChan.
type DeltaSubscriber struct {
	js        jetstream.JetStream
	deltaChan chan<- RawDelta
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

func NewDeltaSubscriber(js jetstream.JetStream, deltaChan chan<- RawDelta, log zerolog.Logger) *DeltaSubscriber {
	return &DeltaSubscriber{js: js, deltaChan: deltaChan, log: log}
}

// Subscribe creates a durable consumer per subject. Messages use explicit ack;
// the caller acks after the delta is parsed and queued, so backpressure from a
// full channel propagates to NATS instead of losing deltas.
func (ds *DeltaSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ds.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawDelta{
				Subject: msg.Subject(),
				Data:    msg.Data(),
				AckFunc: func() { msg.Ack() },
				NakFunc: func() { msg.Nak() },
			}
			select {
			case ds.deltaChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ds.consumers = append(ds.consumers, cc)
		ds.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}
	return nil
}

// Stop drains all consumers.
func (ds *DeltaSubscriber) Stop() {
	for _, cc := range ds.consumers {
		cc.Stop()
	}
}

// OperationForSubject resolves a delta operation from a NATS subject prefix,
// returning "" for unknown subjects.
func OperationForSubject(subject string, subjects []SubjectConfig) string {
	for _, cfg := range subjects {
		prefix := cfg.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			return cfg.Operation
		}
	}
	return ""
}
