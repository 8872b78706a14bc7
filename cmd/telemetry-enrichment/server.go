// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/api"
	"github.com/clustercockpit/telemetry-enrichment/internal/config"
	"github.com/clustercockpit/telemetry-enrichment/internal/metrics"
	"github.com/clustercockpit/telemetry-enrichment/internal/runtimeEnv"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

var (
	router *mux.Router
	server *http.Server
)

// serverInit builds the http.Handler/Router the server will listen with:
// the REST API's own routes, the Prometheus scrape endpoint, plus the
// compression/recovery/CORS/logging middleware stack every request
// passes through regardless of endpoint.
func serverInit(restapi *api.RestApi, metricsProvider *metrics.Provider) {
	router = mux.NewRouter()
	restapi.MountRoutes(router)
	router.Handle("/metrics", metricsProvider.Handler()).Methods(http.MethodGet)

	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	router.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowedMethods([]string{"GET", "POST", "HEAD", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))
}

func serverStart() {
	loggingHandler := handlers.CustomLoggingHandler(io.Discard, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %.02fkb, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, float32(params.Size)/1024,
			time.Since(params.TimeStamp).Milliseconds())
	})

	server = &http.Server{
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		Handler:      loggingHandler,
		Addr:         config.Keys.Addr,
	}

	listener, err := net.Listen("tcp", config.Keys.Addr)
	if err != nil {
		log.Fatalf("starting http listener failed: %s", err.Error())
	}

	if config.Keys.HttpsCertFile != "" && config.Keys.HttpsKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.Keys.HttpsCertFile, config.Keys.HttpsKeyFile)
		if err != nil {
			log.Fatalf("loading X509 keypair failed: %s", err.Error())
		}
		listener = tls.NewListener(listener, &tls.Config{
			Certificates: []tls.Certificate{cert},
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
			MinVersion:               tls.VersionTLS12,
			PreferServerCipherSuites: true,
		})
		fmt.Printf("HTTPS server listening at %s...\n", config.Keys.Addr)
	} else {
		fmt.Printf("HTTP server listening at %s...\n", config.Keys.Addr)
	}

	// The listener is bound before dropping privileges so the process can
	// still claim a privileged port, but after that point runs as the
	// unprivileged user for the rest of its life.
	if err := runtimeEnv.DropPrivileges(config.Keys.Group, config.Keys.User); err != nil {
		log.Fatalf("error while preparing server start: %s", err.Error())
	}

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		log.Fatalf("starting server failed: %s", err.Error())
	}
}

func serverShutdown() {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("http server shutdown: %s", err.Error())
	}
}
