// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/clustercockpit/telemetry-enrichment/internal/ingest"
)

// notifyRequest is the webhook intake envelope: a batch of raw records
// pushed by the upstream ingest service.
type notifyRequest struct {
	Records []ingest.RawRecord `json:"records"`
}

type notifyResponse struct {
	Accepted int `json:"accepted"`
}

// notify implements POST /api/internal/notify: it only validates and
// durably enqueues the batch onto the intake queue, returning as soon as
// the broker has acknowledged the publish. Enrichment happens later, out
// of the request path, in the consumer loop draining that queue - so a
// slow or unavailable weather/IP provider downstream never makes the
// upstream ingest gateway's webhook call block or time out.
func (api *RestApi) notify(rw http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decode(r.Body, &req); err != nil {
		handleError(fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest, rw)
		return
	}

	if len(req.Records) == 0 {
		writeJSON(rw, http.StatusAccepted, notifyResponse{Accepted: 0})
		return
	}

	if api.Nats == nil || !api.Nats.IsConnected() {
		handleError(fmt.Errorf("intake queue unavailable"), http.StatusServiceUnavailable, rw)
		return
	}

	data, err := json.Marshal(req.Records)
	if err != nil {
		handleError(fmt.Errorf("encode batch for queue: %w", err), http.StatusInternalServerError, rw)
		return
	}

	if err := api.Nats.PublishToStream(r.Context(), api.NatsSubject, data); err != nil {
		handleError(fmt.Errorf("enqueue batch: %w", err), http.StatusServiceUnavailable, rw)
		return
	}

	writeJSON(rw, http.StatusAccepted, notifyResponse{Accepted: len(req.Records)})
}
