// Package storage persists the bridge's durable state: the registered push
// endpoint and the last poll cursor.
//
// Drivers:
//   - "file": a single JSON document replaced atomically (tmp + rename)
//   - "sqlite": single-row table in a SQLite database file
//   - "postgres": single-row table in a PostgreSQL database
//
// Every driver stores the whole record at once, so a reader never observes
// one field from an old save and another from a new one.
package storage
