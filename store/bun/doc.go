// Package bunstore implements store.Store using the Bun ORM with the
// PostgreSQL dialect. Claims use SELECT ... FOR UPDATE SKIP LOCKED so any
// number of worker processes can share one table, and quota counters are
// a single conditional upsert.
//
// The caller owns the *bun.DB lifecycle; bunstore never closes it:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	s := bunstore.New(db)
//	if err := s.Migrate(ctx); err != nil { ... }
package bunstore
