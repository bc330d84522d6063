package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestRunInTransaction(t *testing.T) {
	t.Parallel()

	fnErr := errors.New("function failed")
	dbErr := errors.New("driver failure")

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		fn     TxFn
		check  func(t *testing.T, err error)
	}{
		{
			name: "commit on success",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit()
			},
			fn: func(ctx context.Context, tx *sql.Tx) error { return nil },
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "rollback on function error",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			fn: func(ctx context.Context, tx *sql.Tx) error { return fnErr },
			check: func(t *testing.T, err error) {
				assert.Equal(t, fnErr, err)
			},
		},
		{
			name: "begin failure",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(dbErr)
			},
			fn: func(ctx context.Context, tx *sql.Tx) error { return nil },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, dbErr)
				assert.Contains(t, err.Error(), "failed to begin transaction")
			},
		},
		{
			name: "commit failure",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit().WillReturnError(dbErr)
			},
			fn: func(ctx context.Context, tx *sql.Tx) error { return nil },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrTransactionFailed)
				assert.ErrorIs(t, err, dbErr)
			},
		},
		{
			name: "rollback failure keeps original error",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback().WillReturnError(dbErr)
			},
			fn: func(ctx context.Context, tx *sql.Tx) error { return fnErr },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, fnErr)
				assert.Contains(t, err.Error(), "driver failure")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db, mock := newMockDB(t)
			tt.expect(mock)

			err := RunInTransaction(context.Background(), db, tt.fn)
			tt.check(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunInTransaction_Panic(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDueFilterMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter DueFilter
		policy string
		kind   string
		want   bool
	}{
		{"empty filter", DueFilter{}, "tiered-difficulty", "video-review", true},
		{"policy match", DueFilter{PolicyType: "tiered-difficulty"}, "tiered-difficulty", "video-review", true},
		{"policy mismatch", DueFilter{PolicyType: "continuous-quality"}, "tiered-difficulty", "video-review", false},
		{"kind mismatch", DueFilter{Kind: "flashcard"}, "tiered-difficulty", "video-review", false},
		{"both match", DueFilter{PolicyType: "continuous-quality", Kind: "flashcard"}, "continuous-quality", "flashcard", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &domain.ReviewState{
				PolicyType: domain.PolicyType(tt.policy),
				Kind:       domain.ItemKind(tt.kind),
			}
			assert.Equal(t, tt.want, tt.filter.Matches(state))
		})
	}
}
