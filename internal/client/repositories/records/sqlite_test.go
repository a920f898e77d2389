package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/dmitrijs2005/ioukeeper/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  id         TEXT PRIMARY KEY,
  position   INTEGER NOT NULL,
  body       BLOB NOT NULL,
  fetched_at TIMESTAMP NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func decode(t *testing.T, body string) models.Record {
	t.Helper()
	var r models.Record
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	return r
}

func TestInsertAll_ThenGetAll_KeepsOrderAndBody(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	recs := []models.Record{
		decode(t, `{"@id":"z","forAmount":10,"@actions":["pay"]}`),
		decode(t, `{"@id":"a","forAmount":"abc","@state":"paid"}`),
	}
	at := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, r.InsertAll(ctx, recs, at))

	got, fetchedAt, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "z", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.True(t, got[0].Actions.Has("pay"))
	assert.False(t, got[1].ForAmount.Valid)
	assert.Equal(t, models.StatePaid, got[1].State)
	assert.True(t, at.Equal(fetchedAt))
}

func TestGetAll_Empty(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	got, fetchedAt, err := r.GetAll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.True(t, fetchedAt.IsZero())
}

func TestInsertAll_OverwritesSameID(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.InsertAll(ctx, []models.Record{decode(t, `{"@id":"x","forAmount":1}`)}, time.Now()))
	require.NoError(t, r.InsertAll(ctx, []models.Record{decode(t, `{"@id":"x","forAmount":2}`)}, time.Now()))

	got, _, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ForAmount.Decimal.String())
}

func TestClear_RemovesAll(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.InsertAll(ctx, []models.Record{decode(t, `{"@id":"x"}`)}, time.Now()))
	require.NoError(t, r.Clear(ctx))

	got, _, err := r.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplaceInTx_RollsBackOnError(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewSQLiteRepository(db).InsertAll(ctx, []models.Record{decode(t, `{"@id":"old"}`)}, time.Now()))

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewSQLiteRepository(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		if err := repo.InsertAll(ctx, []models.Record{decode(t, `{"@id":"new"}`)}, time.Now()); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, _, err := NewSQLiteRepository(db).GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].ID)
}

func TestGetAll_CorruptBody(t *testing.T) {
	db := setupDB(t)
	_, err := db.Exec(`INSERT INTO records(id, position, body, fetched_at) VALUES ('bad', 0, 'not json', 1)`)
	require.NoError(t, err)

	_, _, err = NewSQLiteRepository(db).GetAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode cached record bad")
}

func TestDBErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, _, err := r.GetAll(ctx)
	require.ErrorContains(t, err, "failed to select records")
	require.ErrorContains(t, r.Clear(ctx), "failed to clear records")
	require.ErrorContains(t, r.InsertAll(ctx, []models.Record{{ID: "x"}}, time.Now()), "failed to insert record x")
}
