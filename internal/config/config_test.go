// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	Init(filepath.Join(t.TempDir(), "does-not-exist.json"))

	if Keys.Addr != ":8080" {
		t.Errorf("wrong addr\ngot: %s\nwant: :8080", Keys.Addr)
	}
	if Keys.DBDriver != "sqlite3" {
		t.Errorf("wrong db-driver\ngot: %s\nwant: sqlite3", Keys.DBDriver)
	}
}

func TestInitOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	const raw = `{
		"addr": "0.0.0.0:9090",
		"disable-authentication": true,
		"db-driver": "sqlite3",
		"db": "./var/test.db"
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	Init(path)

	if Keys.Addr != "0.0.0.0:9090" {
		t.Errorf("wrong addr\ngot: %s\nwant: 0.0.0.0:9090", Keys.Addr)
	}
	if !Keys.DisableAuthentication {
		t.Error("expected disable-authentication to be true")
	}
}
