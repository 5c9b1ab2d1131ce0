package migrations

import "embed"

// FS contains the embedded SQLite migrations for bot state.
//
//go:embed *.sql
var FS embed.FS
