// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"database/sql"
	"embed"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*
var migrationFiles embed.FS

// RunMigrations brings the schema for backend ("sqlite3" or "mysql") up
// to the latest embedded migration. It is idempotent and safe to call on
// every process start, applying pending migrations automatically rather
// than merely warning about them - this service has no interactive
// operator console to act on a warning.
func RunMigrations(backend string, db *sql.DB) {
	var m *migrate.Migrate
	var err error

	switch backend {
	case "sqlite3":
		driver, derr := sqlite3.WithInstance(db, &sqlite3.Config{})
		if derr != nil {
			log.Fatalf("store: sqlite3 migration driver: %v", derr)
		}
		src, serr := iofs.New(migrationFiles, "migrations/sqlite3")
		if serr != nil {
			log.Fatalf("store: loading sqlite3 migrations: %v", serr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	case "mysql":
		driver, derr := mysql.WithInstance(db, &mysql.Config{})
		if derr != nil {
			log.Fatalf("store: mysql migration driver: %v", derr)
		}
		src, serr := iofs.New(migrationFiles, "migrations/mysql")
		if serr != nil {
			log.Fatalf("store: loading mysql migrations: %v", serr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", driver)
	default:
		log.Fatalf("store: unsupported database driver %q", backend)
	}
	if err != nil {
		log.Fatalf("store: initializing migrator: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("store: applying migrations: %v", err)
	}
}
