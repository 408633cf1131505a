// Package database provides the adapter that owns a pooled connection,
// executes rendered statements under bounded waits, hydrates rows into
// models, bootstraps tables, provisions databases and roles, and bridges
// database notifications to observers. It is built on top of Bun.
package database
