// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/api"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) *store.DBConnection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	store.RunMigrations("sqlite3", db.DB)
	t.Cleanup(func() { db.Close() })
	return &store.DBConnection{DB: db, Driver: "sqlite3"}
}

func newTestRouter(t *testing.T) (*mux.Router, *api.RestApi) {
	t.Helper()
	restapi := &api.RestApi{
		Conn:        newTestConn(t),
		NatsSubject: "telemetry.batches",
		DisableAuth: true,
		StartedAt:   time.Now(),
	}
	r := mux.NewRouter()
	restapi.MountRoutes(r)
	return r, restapi
}

func TestIndexReturnsServerSummary(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"online"`)
	require.Contains(t, rec.Body.String(), `"api_endpoints"`)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/does/not/exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
