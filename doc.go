// Package ygggo_sql provides a dialect-aware SELECT builder on top of a
// pooled, observable connection layer for MySQL, PostgreSQL and SQLite.
//
// # Overview
//
// A QueryBuilder collects statement fragments ("parts") in a map keyed by
// Part. Rendering walks the parts in a fixed order, asks the Dialect to
// quote identifiers and to turn each bound value into a placeholder, and
// produces a Statement holding the SQL text and its arguments in
// placeholder order. Values never reach the SQL text itself.
//
// A Connection owns a bounded pool of clients. Send leases one client,
// executes, and returns the client on every path. Lifecycle events
// (connecting, connect, acquire, query-before, query-after, release,
// error, remove, ...) are delivered to handlers and observers, which is how
// logging, tracing and metrics attach.
//
// # Quick Start
//
//	import ggs "github.com/yggai/ygggo_sql"
//
//	conn, err := ggs.Open(ctx, ggs.Config{
//		Driver:   "mysql",
//		Host:     "localhost",
//		Username: "user",
//		Password: "password",
//		Database: "mydb",
//		Prefix:   "app_",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close()
//
//	rows, err := conn.Table("users").
//		Where("age", ">", 18).
//		OrderBy("name", "asc").
//		Limit(10).
//		Get(ctx)
//
// The same builder renders
//
//	SELECT * FROM `app_users` WHERE `age` > ? ORDER BY `name` ASC LIMIT 10
//
// on MySQL and
//
//	SELECT * FROM "app_users" WHERE "age" > $1 ORDER BY "name" ASC LIMIT 10
//
// on PostgreSQL.
//
// # Capabilities
//
// Extra terminal methods are added by composing mixins rather than by
// extending QueryBuilder:
//
//	b := conn.Builder("orders", ggs.WithHaving(), ggs.WithFirst(), ggs.WithChunk())
//	h, _ := ggs.Find[*ggs.HavingBuilder](b)
//	h.Base().Select("customer_id").GroupBy("customer_id")
//	h.Having("customer_id", ">", 10)
//
//	chunker, _ := ggs.Find[*ggs.ChunkBuilder](b)
//	err = chunker.Each(ctx, 500, func(batch []ggs.Record) error {
//		return process(batch)
//	})
//
// Reset on the base builder runs through every layer, so a global reset
// also clears the HAVING predicates, which Clone copies like any other part.
//
// # Configuration
//
// Config values are layered: DefaultConfig, then the engine defaults
// (MySQLDefaults, PostgresDefaults, SQLiteDefaults), then the caller's
// Config. Non-zero fields of a later layer win. LoadConfig reads a caller
// layer from a file, .env and YGGGO_SQL_* environment variables:
//
//	export YGGGO_SQL_DRIVER=postgres
//	export YGGGO_SQL_HOST=localhost
//	export YGGGO_SQL_MAX_CLIENTS=20
//	export YGGGO_SQL_TIMEOUT_CONNECTION=5s
//
// # Errors
//
// Pool failures are *ConnectionError (wrapping ErrLeaseTimeout or
// ErrPoolClosed where applicable); statement failures are *QueryError,
// whose SQL and bindings are available through accessors but kept out of
// Error(). Invalid configuration is a *ConfigError. Classify maps MySQL and
// PostgreSQL driver errors to an ErrorClass.
//
// For runnable programs see the examples/ directory.
package ygggo_sql
