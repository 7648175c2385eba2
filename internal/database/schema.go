package database

import _ "embed"

// Schema is the full DDL produced by applying every migration.
//
//go:embed schema.sql
var Schema string
