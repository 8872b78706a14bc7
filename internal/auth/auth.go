// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package auth implements the service-to-service gate in front of the
// intake and read endpoints: a localhost bypass for same-host callers,
// and Ed25519-signed bearer tokens for everyone else.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned to onfailure when a request carries neither
// a localhost origin nor a valid bearer token.
var ErrUnauthorized = errors.New("auth: missing or invalid bearer token")

// ServiceAuth validates the Authorization header against a single
// Ed25519 public key - there is exactly one trusted signer (the upstream
// ingest gateway), so there is no per-user key lookup.
type ServiceAuth struct {
	publicKey ed25519.PublicKey
}

// Init decodes the base64-encoded Ed25519 public key used to verify
// incoming bearer tokens. An empty key is accepted (every non-localhost
// request is then rejected) so a deployment can run with the intake
// endpoint reachable only from localhost.
func Init(publicKeyBase64 string) (*ServiceAuth, error) {
	if publicKeyBase64 == "" {
		log.Warn("auth: no public key configured, bearer token requests will be rejected")
		return &ServiceAuth{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: decode public key: %w", err)
	}

	return &ServiceAuth{publicKey: ed25519.PublicKey(raw)}, nil
}

func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

// Middleware gates next behind the localhost bypass or a valid
// Ed25519-signed bearer token, calling onfailure (rather than writing the
// response itself) so callers can render a uniform error body.
func (a *ServiceAuth) Middleware(onsuccess http.Handler, onfailure func(rw http.ResponseWriter, r *http.Request, err error)) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if isLocalhost(r) {
			onsuccess.ServeHTTP(rw, r)
			return
		}

		if a.publicKey == nil {
			onfailure(rw, r, ErrUnauthorized)
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			onfailure(rw, r, ErrUnauthorized)
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodEdDSA {
				return nil, fmt.Errorf("auth: unsupported signing method %s", t.Method.Alg())
			}
			return a.publicKey, nil
		})
		if err != nil || !token.Valid {
			onfailure(rw, r, ErrUnauthorized)
			return
		}

		onsuccess.ServeHTTP(rw, r)
	})
}
