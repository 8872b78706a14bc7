// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store is the persistence layer: the dual-table
// enriched_telemetry/latest_enriched_state schema, conditional upserts,
// history/latest/recent-devices read queries, and the size-driven
// retention trimmer.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

var (
	connOnce     sync.Once
	connInstance *DBConnection
)

// DBConnection wraps the process-wide database handle.
type DBConnection struct {
	DB     *sqlx.DB
	Driver string
}

// Connect opens (once) the database handle for driver ("sqlite3" or
// "mysql"), wiring a query/timing hook for sqlite3, and runs the embedded migration
// set to bring the schema up to date.
func Connect(driver, db string) *DBConnection {
	connOnce.Do(func() {
		var handle *sqlx.DB
		var err error

		switch driver {
		case "sqlite3":
			sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryHooks{}))
			handle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", db))
			if err != nil {
				log.Fatalf("store: opening sqlite3 database: %v", err)
			}
			// sqlite3 does not multiplex writers; one connection avoids
			// lock-wait churn under concurrent ingest workers.
			handle.SetMaxOpenConns(1)
			handle.MustExec("PRAGMA journal_mode=WAL;")
			handle.MustExec("PRAGMA synchronous=NORMAL;")
		case "mysql":
			handle, err = sqlx.Open("mysql", fmt.Sprintf("%s?multiStatements=true&parseTime=true", db))
			if err != nil {
				log.Fatalf("store: opening mysql database: %v", err)
			}
			handle.SetConnMaxLifetime(3 * time.Minute)
			handle.SetMaxOpenConns(10)
			handle.SetMaxIdleConns(10)
		default:
			log.Fatalf("store: unsupported database driver %q", driver)
		}

		connInstance = &DBConnection{DB: handle, Driver: driver}
		RunMigrations(driver, handle.DB)
	})
	return connInstance
}

// GetConnection returns the process-wide connection established by Connect.
func GetConnection() *DBConnection {
	if connInstance == nil {
		log.Fatalf("store: database connection not initialized")
	}
	return connInstance
}

// queryHooks logs every query with timing via sqlhooks.Hooks.
type queryHooks struct{}

func (h *queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: query %s %q", query, args)
	return context.WithValue(ctx, ctxBeginKey{}, time.Now()), nil
}

func (h *queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(ctxBeginKey{}).(time.Time); ok {
		log.Debugf("store: took %s", time.Since(begin))
	}
	return ctx, nil
}

type ctxBeginKey struct{}

// psql is the squirrel statement builder configured for "?" placeholders
// (sqlite3/mysql); Postgres is not a supported driver so "$" is never
// needed.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)
