package receipt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lastReceiptPattern = `SELECT receipt_number\s+FROM payments\s+WHERE payment_status = 'COMPLETED'`

func TestFormat(t *testing.T) {
	assert.Equal(t, "001", Format(1))
	assert.Equal(t, "042", Format(42))
	assert.Equal(t, "999", Format(999))
	assert.Equal(t, "1000", Format(1000))
}

func TestLedgerSequencer_Next(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seq := NewLedgerSequencer(db)
	ctx := context.Background()

	t.Run("EmptyLedger", func(t *testing.T) {
		mock.ExpectQuery(lastReceiptPattern).
			WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}))

		got, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "001", got)
	})

	t.Run("Increments", func(t *testing.T) {
		mock.ExpectQuery(lastReceiptPattern).
			WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}).AddRow("041"))

		got, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "042", got)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(lastReceiptPattern).
			WillReturnError(errors.New("connection refused"))

		_, err := seq.Next(ctx)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("UnparseableReceipt", func(t *testing.T) {
		mock.ExpectQuery(lastReceiptPattern).
			WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}).AddRow("99999999999999999999"))

		_, err := seq.Next(ctx)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Two initiations that both read the ledger before either payment completes
// receive the same number. This is the documented weakness of the ledger
// strategy.
func TestLedgerSequencer_ConcurrentReadsCollide(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(lastReceiptPattern).
			WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}).AddRow("041"))
	}

	seq := NewLedgerSequencer(db)

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = seq.Next(context.Background())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "042", results[0])
	assert.Equal(t, results[0], results[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterSequencer_Next(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seq := NewCounterSequencer(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO receipt_counters \(name, value\).*ON CONFLICT \(name\) DO UPDATE SET value = receipt_counters.value \+ 1\s+RETURNING value`).
			WithArgs("payments").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))

		got, err := seq.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "042", got)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO receipt_counters`).
			WillReturnError(errors.New("relation does not exist"))

		_, err := seq.Next(context.Background())
		assert.ErrorContains(t, err, "increment receipt counter")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSequencer_Next(t *testing.T) {
	ctx := context.Background()

	t.Run("SeedsFromLedger", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		_, client := newTestRedis(t)

		mock.ExpectQuery(lastReceiptPattern).
			WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}).AddRow("041"))

		seq := NewRedisSequencer(client, db)

		first, err := seq.Next(ctx)
		require.NoError(t, err)
		second, err := seq.Next(ctx)
		require.NoError(t, err)

		assert.Equal(t, "042", first)
		assert.Equal(t, "043", second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyLedger", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		_, client := newTestRedis(t)

		mock.ExpectQuery(lastReceiptPattern).
			WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}))

		got, err := NewRedisSequencer(client, db).Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "001", got)
	})

	t.Run("ExistingCounterNotRewound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mr, client := newTestRedis(t)
		require.NoError(t, mr.Set(redisKey, "120"))

		mock.ExpectQuery(lastReceiptPattern).
			WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}).AddRow("041"))

		got, err := NewRedisSequencer(client, db).Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "121", got)
	})

	t.Run("RedisDown", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mr, client := newTestRedis(t)
		mr.Close()

		mock.ExpectQuery(lastReceiptPattern).
			WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}))

		_, err = NewRedisSequencer(client, db).Next(ctx)
		assert.ErrorContains(t, err, "seed receipt counter")
	})
}

func TestRedisSequencer_SeededSkipsLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, client := newTestRedis(t)

	mock.ExpectQuery(lastReceiptPattern).
		WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}).AddRow("041"))

	seq := NewRedisSequencer(client, db)
	_, err = seq.Next(context.Background())
	require.NoError(t, err)

	seq.mu.Lock()
	defer seq.mu.Unlock()

	got := make(chan string, 1)
	go func() {
		n, err := seq.Next(context.Background())
		assert.NoError(t, err)
		got <- n
	}()

	select {
	case n := <-got:
		assert.Equal(t, "043", n)
	case <-time.After(time.Second):
		t.Fatal("Next blocked on the seed lock after seeding")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_ConcurrentCallsAreUnique(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, client := newTestRedis(t)

	mock.ExpectQuery(lastReceiptPattern).
		WillReturnRows(sqlmock.NewRows([]string{"receipt_number"}).AddRow("041"))

	seq := NewRedisSequencer(client, db)

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := seq.Next(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen[got] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.True(t, seen["042"])
	assert.True(t, seen["091"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
