// Package db embeds the database schema for the order registration tables.
package db

import _ "embed"

// Schema contains the DDL for the organizations, orders and order_items
// tables, including the per-organization reference counter.
//
//go:embed migrations/001_schema.sql
var Schema string
