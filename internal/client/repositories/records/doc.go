// Package records caches the last record set fetched from the engine.
//
// # Overview
//
// Records are stored as the raw JSON the engine returned, together with their
// position in the fetched list and the time of the fetch. The cache is only
// ever replaced as a whole: callers clear it and insert the new set inside a
// single transaction (see dbx.WithTx), so readers never observe a mix of two
// fetch cycles.
//
// # Concurrency
//
// SQLiteRepository is safe for concurrent use when backed by a *sql.DB. When
// bound to a *sql.Tx it follows normal transaction scoping rules.
//
// Typical Usage
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    repo := records.NewSQLiteRepository(tx)
//	    if err := repo.Clear(ctx); err != nil {
//	        return err
//	    }
//	    return repo.InsertAll(ctx, recs, time.Now())
//	})
//
//	cached, fetchedAt, _ := records.NewSQLiteRepository(db).GetAll(ctx)
package records
