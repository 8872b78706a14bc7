// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Providers bundles the two fetch paths the coordinator chooses between:
// Open-Meteo (primary, current+marine unioned) and wttr.in (fallback,
// unit-translated). Each owns its own breaker so a failing provider never
// drags the other one down.
type Providers struct {
	httpClient *http.Client

	primaryURL  string
	marineURL   string
	fallbackURL string

	primaryTimeout  time.Duration
	marineTimeout   time.Duration
	fallbackTimeout time.Duration

	primaryBreaker  *gobreaker.CircuitBreaker[map[string]interface{}]
	fallbackBreaker *gobreaker.CircuitBreaker[map[string]interface{}]
}

// ProvidersConfig configures provider endpoints and timeouts.
type ProvidersConfig struct {
	PrimaryURL, MarineURL, FallbackURL                string
	PrimaryTimeout, MarineTimeout, FallbackTimeout time.Duration
}

func NewProviders(cfg ProvidersConfig) *Providers {
	p := &Providers{
		httpClient:      &http.Client{},
		primaryURL:      cfg.PrimaryURL,
		marineURL:       cfg.MarineURL,
		fallbackURL:     cfg.FallbackURL,
		primaryTimeout:  cfg.PrimaryTimeout,
		marineTimeout:   cfg.MarineTimeout,
		fallbackTimeout: cfg.FallbackTimeout,
	}

	p.primaryBreaker = gobreaker.NewCircuitBreaker[map[string]interface{}](gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
	})
	p.fallbackBreaker = gobreaker.NewCircuitBreaker[map[string]interface{}](gobreaker.Settings{
		Name:        "wttr.in",
		MaxRequests: 1,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 2 },
	})

	return p
}

// Fetch runs the primary-then-fallback procedure described by the
// coordinator: Open-Meteo current+marine concurrently through its
// breaker, falling back to wttr.in (its own breaker) on any failure or
// when the primary breaker is open.
func (p *Providers) Fetch(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	data, err := p.primaryBreaker.Execute(func() (map[string]interface{}, error) {
		return p.fetchOpenMeteo(ctx, lat, lon)
	})
	if err == nil {
		return data, nil
	}

	return p.fallbackBreaker.Execute(func() (map[string]interface{}, error) {
		return p.fetchWttr(ctx, lat, lon)
	})
}

func (p *Providers) fetchOpenMeteo(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	var wg sync.WaitGroup
	var current, marine map[string]interface{}
	var currentErr, marineErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		current, currentErr = p.fetchOpenMeteoCurrent(ctx, lat, lon)
	}()
	go func() {
		defer wg.Done()
		marine, marineErr = p.fetchOpenMeteoMarine(ctx, lat, lon)
	}()
	wg.Wait()

	out := map[string]interface{}{}
	if currentErr == nil {
		for k, v := range current {
			out[k] = v
		}
	}
	if marineErr == nil {
		for k, v := range marine {
			out[k] = v
		}
	}

	if len(out) == 0 {
		if currentErr != nil {
			return nil, currentErr
		}
		return nil, marineErr
	}
	return out, nil
}

func (p *Providers) fetchOpenMeteoCurrent(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, p.primaryTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("timezone", "UTC")
	q.Set("wind_speed_unit", "ms")
	q.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m,wind_direction_10m,wind_gusts_10m,pressure_msl,cloud_cover")

	var payload struct {
		Current map[string]interface{} `json:"current"`
	}
	if err := p.getJSON(ctx, p.primaryURL+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"temperature":    payload.Current["temperature_2m"],
		"humidity":       payload.Current["relative_humidity_2m"],
		"apparent_temp":  payload.Current["apparent_temperature"],
		"precipitation":  payload.Current["precipitation"],
		"code":           payload.Current["weather_code"],
		"wind_speed":     payload.Current["wind_speed_10m"],
		"wind_direction": payload.Current["wind_direction_10m"],
		"wind_gusts":     payload.Current["wind_gusts_10m"],
		"pressure_msl":   payload.Current["pressure_msl"],
		"cloud_cover":    payload.Current["cloud_cover"],
	}, nil
}

func (p *Providers) fetchOpenMeteoMarine(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, p.marineTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("timezone", "UTC")
	q.Set("current", "wave_height,wave_direction,wave_period,swell_wave_height,swell_wave_direction,swell_wave_period")

	var payload struct {
		Current map[string]interface{} `json:"current"`
	}
	if err := p.getJSON(ctx, p.marineURL+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"marine_wave_height":          payload.Current["wave_height"],
		"marine_wave_direction":       payload.Current["wave_direction"],
		"marine_wave_period":          payload.Current["wave_period"],
		"marine_swell_wave_height":    payload.Current["swell_wave_height"],
		"marine_swell_wave_direction": payload.Current["swell_wave_direction"],
		"marine_swell_wave_period":    payload.Current["swell_wave_period"],
	}, nil
}

func (p *Providers) fetchWttr(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, p.fallbackTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%f,%f?format=j1", p.fallbackURL, lat, lon)

	var payload struct {
		CurrentCondition []map[string]string `json:"current_condition"`
	}
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	if len(payload.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather: wttr.in returned no current_condition")
	}

	cur := payload.CurrentCondition[0]
	windKmh, _ := strconv.ParseFloat(cur["windspeedKmph"], 64)

	return map[string]interface{}{
		"temperature":    parseOr(cur["temp_C"], 0),
		"humidity":       parseOr(cur["humidity"], 0),
		"apparent_temp":  parseOr(cur["FeelsLikeC"], 0),
		"precipitation":  parseOr(cur["precipMM"], 0),
		"wind_speed":     windKmh * (1000.0 / 3600.0),
		"wind_direction": parseOr(cur["winddirDegree"], 0),
		"pressure_msl":   parseOr(cur["pressure"], 0),
		"cloud_cover":    parseOr(cur["cloudcover"], 0),
	}, nil
}

func parseOr(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (p *Providers) getJSON(ctx context.Context, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: unexpected status %d from %s", resp.StatusCode, target)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
