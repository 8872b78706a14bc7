// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ipintel_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/clustercockpit/telemetry-enrichment/internal/ipintel"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupAbsentIP(t *testing.T) {
	l := ipintel.New(nil, "", time.Second, time.Hour)
	assert.Nil(t, l.Lookup(context.Background(), ""))
}

func TestLookupSuccessAndCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","country":"Germany","regionName":"Bavaria","city":"Munich","lat":48.1,"lon":11.6,"isp":"Example ISP"}`))
	}))
	defer srv.Close()

	l := ipintel.New(rdb, srv.URL, time.Second, time.Hour)
	res := l.Lookup(context.Background(), "1.2.3.4")
	require.NotNil(t, res)
	assert.Equal(t, "Germany", res.Geolocation["country"])

	res2 := l.Lookup(context.Background(), "1.2.3.4")
	require.NotNil(t, res2)
	assert.Equal(t, 1, calls, "second lookup must be served from cache")
}

func TestLookupNonSuccessStatusReturnsNil(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","message":"invalid query"}`))
	}))
	defer srv.Close()

	l := ipintel.New(rdb, srv.URL, time.Second, time.Hour)
	assert.Nil(t, l.Lookup(context.Background(), "bad-ip"))
}
