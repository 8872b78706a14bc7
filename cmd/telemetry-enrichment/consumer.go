// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/ingest"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/clustercockpit/telemetry-enrichment/pkg/nats"
	"github.com/nats-io/nats.go/jetstream"
)

const consumerFetchBatchSize = 64

// startConsumer runs the pull-consumer loop that turns queued webhook
// batches into persisted history: EnsureConsumer once, then repeatedly
// FetchBatch/Process/Ack until ctx is cancelled. Each NATS message holds
// one JSON array of ingest.RawRecord, matching how the webhook intake
// handler published it (see internal/api/notify.go). Returns the cancel
// function the caller uses to stop the loop during shutdown.
func startConsumer(wg *sync.WaitGroup, worker *ingest.Worker) func() {
	client := nats.GetClient()
	if client == nil {
		log.Warn("consumer: NATS not connected, ingest consumer loop disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	cons, err := client.EnsureConsumer(ctx)
	if err != nil {
		log.Errorf("consumer: could not set up pull consumer: %s", err.Error())
		cancel()
		return nil
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runConsumerLoop(ctx, client, cons, worker)
	}()

	return cancel
}

func runConsumerLoop(ctx context.Context, client *nats.Client, cons jetstream.Consumer, worker *ingest.Worker) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := client.FetchBatch(ctx, cons, consumerFetchBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("consumer: fetch failed: %s", err.Error())
			continue
		}

		for _, msg := range msgs {
			processMessage(ctx, worker, msg)
		}
	}
}

func processMessage(ctx context.Context, worker *ingest.Worker, msg jetstream.Msg) {
	var records []ingest.RawRecord
	if err := json.Unmarshal(msg.Data(), &records); err != nil {
		log.Errorf("consumer: malformed batch, terminating message: %s", err.Error())
		if termErr := msg.Term(); termErr != nil {
			log.Warnf("consumer: term failed: %s", termErr.Error())
		}
		return
	}

	if _, err := worker.Process(ctx, records, time.Now()); err != nil {
		log.Warnf("consumer: processing batch failed, will redeliver: %s", err.Error())
		if nakErr := msg.Nak(); nakErr != nil {
			log.Warnf("consumer: nak failed: %s", nakErr.Error())
		}
		return
	}

	if err := msg.Ack(); err != nil {
		log.Warnf("consumer: ack failed: %s", err.Error())
	}
}
