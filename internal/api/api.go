// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api mounts the webhook intake and read endpoints as thin
// gorilla/mux handlers over the core packages: it decodes/encodes wire
// payloads, gates requests behind internal/auth, and otherwise defers all
// stateful work to internal/ingest, internal/store and internal/read.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/auth"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/clustercockpit/telemetry-enrichment/pkg/nats"
	"github.com/gorilla/mux"
)

// RestApi bundles everything the handlers need: the persistence layer for
// read endpoints, the queue client the intake endpoint publishes onto, and
// the service-to-service authenticator.
type RestApi struct {
	Conn           *store.DBConnection
	Nats           *nats.Client
	NatsSubject    string
	Auth           *auth.ServiceAuth
	DisableAuth    bool
	DBPath         string
	MaxDBSizeBytes int64
	StartedAt      time.Time
}

// MountRoutes registers every endpoint on r, gating all but "/" behind the
// service authenticator unless auth has been disabled for local
// development (config.Keys.DisableAuthentication).
func (api *RestApi) MountRoutes(r *mux.Router) {
	r.HandleFunc("/", api.index).Methods(http.MethodGet)

	secured := r.NewRoute().Subrouter()
	if !api.DisableAuth && api.Auth != nil {
		secured.Use(func(next http.Handler) http.Handler {
			return api.Auth.Middleware(next, func(rw http.ResponseWriter, r *http.Request, err error) {
				handleError(err, http.StatusUnauthorized, rw)
			})
		})
	}

	secured.HandleFunc("/api/internal/notify", api.notify).Methods(http.MethodPost)
	secured.HandleFunc("/data/latest/{device_id}", api.getLatest).Methods(http.MethodGet)
	secured.HandleFunc("/data/history", api.getHistory).Methods(http.MethodGet)
	secured.HandleFunc("/data/devices", api.getDevices).Methods(http.MethodGet)
}

// ErrorResponse is the uniform JSON error body for every failed request.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func handleError(err error, statusCode int, rw http.ResponseWriter) {
	log.Warnf("api: %s", err.Error())
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(ErrorResponse{
		Status: http.StatusText(statusCode),
		Error:  err.Error(),
	})
}

func writeJSON(rw http.ResponseWriter, statusCode int, payload interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	enc := json.NewEncoder(rw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		log.Errorf("api: encode response: %v", err)
	}
}

func decode(r io.Reader, val interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}

// baseURL reconstructs scheme://host from the request, matching how a
// reverse proxy typically forwards it (X-Forwarded-Proto), falling back to
// plain http for direct/local access.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// displayTimestamp renders a stored "YYYY-MM-DD HH:MM:SS" timestamp as
// "DD.MM.YYYY HH:MM:SS UTC" for API responses. Unparseable or empty input is
// passed through unchanged rather than erroring the whole response over one
// cosmetic field.
func displayTimestamp(stored string) string {
	if stored == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02 15:04:05", stored)
	if err != nil {
		return stored
	}
	return t.Format("02.01.2006 15:04:05") + " UTC"
}
