// Package db provides the embedded database schema and the default catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Products is the catalog shipped with the binary. It is used when no
// catalog file is configured.
//
//go:embed seed/products.json
var Products []byte
