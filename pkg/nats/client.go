// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package nats provides the durable JetStream intake queue the stateful
// ingest worker pulls device-telemetry batches from, plus a thin
// publish/subscribe wrapper used for ad-hoc signalling.
//
// # Configuration
//
// Configure the client via JSON in the application config:
//
//	{
//	  "nats": {
//	    "address": "nats://localhost:4222",
//	    "stream": "TELEMETRY",
//	    "subject": "telemetry.batches",
//	    "durable": "ingest-worker"
//	  }
//	}
//
// # Usage
//
//	nats.Init(rawConfig)
//	nats.Connect()
//
//	client := nats.GetClient()
//	cons, _ := client.EnsureConsumer(ctx)
//	msgs, _ := client.FetchBatch(ctx, cons, 64)
//
// # Thread Safety
//
// All Client methods are safe for concurrent use.
package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var (
	clientOnce     sync.Once
	clientInstance *Client
)

// Client wraps a NATS connection with subscription management and
// JetStream pull-consumer access.
type Client struct {
	conn          *nats.Conn
	js            jetstream.JetStream
	subscriptions []*nats.Subscription
	mu            sync.Mutex
}

// MessageHandler is a callback function for processing received messages.
type MessageHandler func(subject string, data []byte)

// Connect initializes the singleton NATS client using the global Keys config.
func Connect() {
	clientOnce.Do(func() {
		if Keys.Address == "" {
			log.Warn("NATS: no address configured, skipping connection")
			return
		}

		client, err := NewClient(nil)
		if err != nil {
			log.Warnf("NATS connection failed: %v", err)
			return
		}

		clientInstance = client
	})
}

// GetClient returns the singleton NATS client instance.
func GetClient() *Client {
	if clientInstance == nil {
		log.Warn("NATS client not initialized")
	}
	return clientInstance
}

// NewClient creates a new NATS client. If cfg is nil, uses the global Keys config.
func NewClient(cfg *NatsConfig) (*Client, error) {
	if cfg == nil {
		cfg = &Keys
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("NATS address is required")
	}

	var opts []nats.Option

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("NATS disconnected: %v", err)
		}
	}))

	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
	}))

	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("NATS error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("NATS connect failed: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("NATS jetstream init failed: %w", err)
	}

	log.Infof("NATS connected to %s", cfg.Address)

	return &Client{
		conn:          nc,
		js:            js,
		subscriptions: make([]*nats.Subscription, 0),
	}, nil
}

// EnsureConsumer idempotently creates (or attaches to) the durable pull
// consumer described by Keys.Stream/Subject/Durable. The stream itself is
// assumed to already be provisioned (stream bootstrap is out of scope here,
// matching the rest of the ingest pipeline's bootstrap boundary).
func (c *Client) EnsureConsumer(ctx context.Context) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, Keys.Stream)
	if err != nil {
		return nil, fmt.Errorf("NATS stream '%s' not available: %w", Keys.Stream, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       Keys.Durable,
		FilterSubject: Keys.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("NATS consumer '%s' setup failed: %w", Keys.Durable, err)
	}

	return cons, nil
}

// FetchBatch pulls up to maxMessages pending messages, waiting at most 30s
// for them to arrive; ctx is not consulted. Callers are responsible for Ack/Nak on
// each returned message once it has been durably persisted or must be
// retried.
func (c *Client) FetchBatch(ctx context.Context, cons jetstream.Consumer, maxMessages int) ([]jetstream.Msg, error) {
	batch, err := cons.Fetch(maxMessages, jetstream.FetchMaxWait(30e9))
	if err != nil {
		return nil, fmt.Errorf("NATS fetch failed: %w", err)
	}

	msgs := make([]jetstream.Msg, 0, maxMessages)
	for msg := range batch.Messages() {
		msgs = append(msgs, msg)
	}
	if err := batch.Error(); err != nil {
		return msgs, err
	}

	return msgs, nil
}

// Subscribe registers a handler for messages on the given subject.
func (c *Client) Subscribe(subject string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("NATS subscribe to '%s' failed: %w", subject, err)
	}

	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("NATS subscribed to '%s'", subject)
	return nil
}

// Publish sends data to the specified subject.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("NATS publish to '%s' failed: %w", subject, err)
	}
	return nil
}

// PublishToStream publishes data to the JetStream-backed intake subject and
// waits for the broker's durable-store acknowledgement, giving the webhook
// intake handler at-least-once delivery: once this call returns without
// error, FetchBatch is guaranteed to eventually hand the message to a
// consumer even if this process crashes immediately afterward.
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("NATS stream publish to '%s' failed: %w", subject, err)
	}
	return nil
}

// Flush flushes the connection buffer to ensure all published messages are sent.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close unsubscribes all subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("NATS unsubscribe failed: %v", err)
		}
	}
	c.subscriptions = nil

	if c.conn != nil {
		c.conn.Close()
		log.Info("NATS connection closed")
	}
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Connection returns the underlying NATS connection for advanced usage.
func (c *Client) Connection() *nats.Conn {
	return c.conn
}
