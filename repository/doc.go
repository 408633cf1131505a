// Package repository provides a per-model façade over a database.Adapter for
// validated CRUD operations, immutable query building, pagination and change
// notification through an observer registry.
package repository
