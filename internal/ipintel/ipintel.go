// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ipintel implements the IP intelligence lookup coordinator:
// a Redis-cached, circuit-breaker-guarded client for ip-api.com that
// shapes a successful response into {geolocation, network_provider,
// security}, or returns nil silently on any fault.
package ipintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

type apiResponse struct {
	Status      string  `json:"status"`
	Country     string  `json:"country"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
	Proxy       bool    `json:"proxy"`
	Hosting     bool    `json:"hosting"`
}

// Result is the shaped lookup output attached to a record's diagnostics.
type Result struct {
	Geolocation     map[string]interface{} `json:"geolocation"`
	NetworkProvider map[string]interface{} `json:"network_provider"`
	Security        map[string]interface{} `json:"security"`
}

func shape(r apiResponse) Result {
	return Result{
		Geolocation: map[string]interface{}{
			"country": r.Country, "region": r.RegionName, "city": r.City,
			"zip": r.Zip, "lat": r.Lat, "lon": r.Lon, "timezone": r.Timezone,
		},
		NetworkProvider: map[string]interface{}{
			"isp": r.ISP, "organization": r.Org, "asn": r.AS,
		},
		Security: map[string]interface{}{
			"is_proxy_or_vpn": r.Proxy, "is_hosting_provider": r.Hosting,
		},
	}
}

// Lookup is a Redis-cached (24h TTL), breaker-guarded (5 failures / 60s)
// ip-api.com client.
type Lookup struct {
	rdb     *redis.Client
	url     string
	timeout time.Duration
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[apiResponse]
	client  *http.Client
}

func New(rdb *redis.Client, baseURL string, timeout, cacheTTL time.Duration) *Lookup {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	l := &Lookup{rdb: rdb, url: baseURL, timeout: timeout, ttl: cacheTTL, client: &http.Client{}}
	l.breaker = gobreaker.NewCircuitBreaker[apiResponse](gobreaker.Settings{
		Name:        "ip-api",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
	})
	return l
}

func cacheKey(ip string) string { return "ip_intel:" + ip }

// Lookup returns the normalized intelligence for ip, or nil if ip is
// absent, the provider reports a non-success status, or any fault
// occurs along the way (cache, breaker, HTTP, decode) - all swallowed
// silently per the coordinator's error-handling contract.
func (l *Lookup) Lookup(ctx context.Context, ip string) *Result {
	if ip == "" {
		return nil
	}

	if cached, err := l.rdb.Get(ctx, cacheKey(ip)).Result(); err == nil {
		var api apiResponse
		if err := json.Unmarshal([]byte(cached), &api); err == nil {
			res := shape(api)
			return &res
		}
	}

	api, err := l.breaker.Execute(func() (apiResponse, error) {
		return l.fetch(ctx, ip)
	})
	if err != nil {
		return nil
	}

	if api.Status != "success" {
		return nil
	}

	if raw, err := json.Marshal(api); err == nil {
		l.rdb.Set(ctx, cacheKey(ip), raw, l.ttl)
	}

	res := shape(api)
	return &res
}

func (l *Lookup) fetch(ctx context.Context, ip string) (apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	target := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city,zip,lat,lon,timezone,isp,org,as,proxy,hosting,query", l.url, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return apiResponse{}, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiResponse{}, fmt.Errorf("ipintel: unexpected status %d", resp.StatusCode)
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return apiResponse{}, err
	}
	return api, nil
}
