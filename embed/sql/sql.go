package sql

import _ "embed"

// Schema is the full ledger schema. Every statement is idempotent so it can
// be applied on each start.
//
//go:embed schema.sql
var Schema string
