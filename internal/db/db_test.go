package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cprtrainer/internal/types"
)

// assertAppErrorCode asserts that err unwraps to an AppError with the given
// code.
func assertAppErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// mockDBTX implements the DBTX interface for testing.
type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	callArgs := m.Called(ctx, sql, args)
	if callArgs.Get(0) == nil {
		return nil, callArgs.Error(1)
	}
	return callArgs.Get(0).(pgx.Rows), callArgs.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	callArgs := m.Called(ctx, sql, args)
	return callArgs.Get(0).(pgx.Row)
}

// mockRows implements pgx.Rows for testing multi-row queries. Each entry in
// scanFns populates one row.
type mockRows struct {
	scanFns []func(dest ...any) error
	idx     int
	err     error
}

func (r *mockRows) Close()                                       {}
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) Next() bool {
	if r.idx >= len(r.scanFns) {
		return false
	}
	r.idx++
	return true
}
func (r *mockRows) Scan(dest ...any) error {
	return r.scanFns[r.idx-1](dest...)
}
func (r *mockRows) Values() ([]any, error) { return nil, nil }
func (r *mockRows) RawValues() [][]byte    { return nil }
func (r *mockRows) Conn() *pgx.Conn        { return nil }

// mockRow implements pgx.Row for testing single-row queries.
type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return nil
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "unique violation",
			err:      &pgconn.PgError{Code: "23505"},
			expected: true,
		},
		{
			name:     "wrapped unique violation",
			err:      errors.Join(errors.New("insert failed"), &pgconn.PgError{Code: "23505"}),
			expected: true,
		},
		{
			name:     "other pg error",
			err:      &pgconn.PgError{Code: "23503"},
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("connection refused"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isUniqueViolation(tt.err))
		})
	}
}

func TestNilIfEmptyString(t *testing.T) {
	assert.Nil(t, nilIfEmptyString(""))

	got := nilIfEmptyString("alloy")
	require.NotNil(t, got)
	assert.Equal(t, "alloy", *got)
}

func TestNilIfZeroTime(t *testing.T) {
	assert.Nil(t, nilIfZeroTime(time.Time{}))

	now := time.Now()
	got := nilIfZeroTime(now)
	require.NotNil(t, got)
	assert.Equal(t, now, *got)
}

func TestNewRegistry_Accessors(t *testing.T) {
	registry := NewRegistry(nil)

	assert.NotNil(t, registry.Teams())
	assert.NotNil(t, registry.Users())
	assert.NotNil(t, registry.Payments())
}

func TestRegistry_Close_NilPool(t *testing.T) {
	registry := NewRegistry(nil)
	assert.NoError(t, registry.Close())
}

func TestRegistry_RunInTx_NilPool(t *testing.T) {
	registry := NewRegistry(nil)

	err := registry.RunInTx(context.Background(), nil)
	require.Error(t, err)
	assertAppErrorCode(t, err, types.ErrCodeInternalDB)
}
