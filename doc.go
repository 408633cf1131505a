// Package tabula maps tagged Go structs to relational tables on PostgreSQL,
// MySQL and SQLite. Open connects and bootstraps the registered models;
// NewService returns a per-model façade over a repository.
//
//	db, err := tabula.Open(ctx, cfg)
//	users := tabula.NewService[User](db)
//	adults, err := users.List(ctx, query.Attribute("age").Gte(18), query.Desc("age"))
package tabula
