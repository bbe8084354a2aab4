package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	StreamName     = "SOCIAL"
	SubjectPattern = "social.>"
)

// NatsPublisher publishes JSON events to the SOCIAL JetStream stream
type NatsPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewNatsPublisher connects and makes sure the stream exists (idempotent).
// Returns nil when url is empty.
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	if url == "" {
		log.Warn().Msg("NATS URL not configured, domain events will not be published")
		return nil, nil
	}

	nc, err := nats.Connect(url, nats.Name("snacc-api"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPattern},
		Storage:  jetstream.FileStorage,
		Replicas: 1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	log.Info().Str("stream", StreamName).Msg("Connected to NATS JetStream")
	return &NatsPublisher{nc: nc, js: js}, nil
}

// Publish marshals v and waits for the JetStream ack
func (p *NatsPublisher) Publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection
func (p *NatsPublisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Error().Err(err).Msg("Error draining NATS connection")
	} else {
		log.Info().Msg("NATS connection closed")
	}
}
