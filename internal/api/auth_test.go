// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clustercockpit/telemetry-enrichment/internal/api"
	"github.com/clustercockpit/telemetry-enrichment/internal/auth"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSecuredRouter(t *testing.T) *mux.Router {
	t.Helper()
	serviceAuth, err := auth.Init("")
	require.NoError(t, err)

	restapi := &api.RestApi{
		Conn:        newTestConn(t),
		NatsSubject: "telemetry.batches",
		Auth:        serviceAuth,
		DisableAuth: false,
	}
	r := mux.NewRouter()
	restapi.MountRoutes(r)
	return r
}

func TestSecuredRouteRejectsUnauthenticatedRemoteCaller(t *testing.T) {
	r := newSecuredRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/data/devices", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSecuredRouteAllowsLocalhostCaller(t *testing.T) {
	r := newSecuredRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/data/devices", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRootRouteNeverRequiresAuth(t *testing.T) {
	r := newSecuredRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
