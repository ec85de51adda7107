package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payrecon/internal/wallet"
)

type MockReconciler struct{ mock.Mock }

func (m *MockReconciler) GetOrCreate(ctx context.Context, userID int64) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockReconciler) ApplyDelta(ctx context.Context, tx *sqlx.Tx, userID int64, deltaCents int64, mode wallet.DeltaMode) (int64, error) {
	args := m.Called(ctx, tx, userID, deltaCents, mode)
	return args.Get(0).(int64), args.Error(1)
}

func setupLedgerMock(t *testing.T) (*Repository, *MockReconciler, sqlmock.Sqlmock, func()) {
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	reconciler := &MockReconciler{}
	repo := NewRepository(sqlxDB, reconciler)

	closer := func() { sqlxDB.Close() }
	return repo, reconciler, mockDB, closer
}

func checkoutColumns() []string {
	return []string{"id", "checkout_id", "user_id", "type", "amount_cents", "status", "balance_after", "failure_reason", "provider_data", "created_at", "updated_at"}
}

func checkoutRow(status Status, processedEvents string) *sqlmock.Rows {
	return sqlmock.NewRows(checkoutColumns()).
		AddRow(1, "chk_1", 42, "withdrawal", 3000, string(status), 10000, "", []byte(`{"processed_events":`+processedEvents+`}`), time.Now(), time.Now())
}

const selectForUpdate = "SELECT id, checkout_id, user_id, type, amount_cents, status, balance_after, failure_reason, provider_data, created_at, updated_at FROM checkout_transactions WHERE checkout_id = $1 FOR UPDATE"

const updateCheckout = "UPDATE checkout_transactions SET status = $1, balance_after = $2, failure_reason = $3, provider_data = $4, updated_at = NOW() WHERE id = $5 RETURNING updated_at"

func TestFindByCheckoutID(t *testing.T) {
	repo, _, mockDB, close := setupLedgerMock(t)
	defer close()

	mockDB.ExpectQuery(regexp.QuoteMeta("SELECT * FROM checkout_transactions WHERE checkout_id = $1")).
		WithArgs("chk_1").
		WillReturnRows(checkoutRow(StatusPending, `["evt_0"]`))

	tx, err := repo.FindByCheckoutID(context.Background(), "chk_1")
	require.NoError(t, err)
	require.Equal(t, "chk_1", tx.CheckoutID)
	require.Equal(t, StatusPending, tx.Status)
	require.True(t, tx.ProviderData.Contains("evt_0"))
}

func TestFindByCheckoutID_NotFound(t *testing.T) {
	repo, _, mockDB, close := setupLedgerMock(t)
	defer close()

	mockDB.ExpectQuery(regexp.QuoteMeta("SELECT * FROM checkout_transactions WHERE checkout_id = $1")).
		WithArgs("chk_missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByCheckoutID(context.Background(), "chk_missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreate(t *testing.T) {
	repo, reconciler, mockDB, close := setupLedgerMock(t)
	defer close()

	ctx := context.Background()

	reconciler.On("GetOrCreate", ctx, int64(42)).Return(&wallet.Wallet{ID: 1, UserID: 42}, nil)
	mockDB.ExpectQuery(regexp.QuoteMeta("INSERT INTO checkout_transactions (checkout_id, user_id, type, amount_cents, status, provider_data)")).
		WithArgs("chk_1", int64(42), TypeWithdrawal, int64(3000), StatusPending, sqlmock.AnyArg()).
		WillReturnRows(checkoutRow(StatusPending, `[]`))

	tx, err := repo.Create(ctx, "chk_1", 42, TypeWithdrawal, 3000)
	require.NoError(t, err)
	require.Equal(t, "chk_1", tx.CheckoutID)

	reconciler.AssertExpectations(t)
}

func TestApplyEvent_AppliesDeltaAndStatus(t *testing.T) {
	repo, reconciler, mockDB, close := setupLedgerMock(t)
	defer close()

	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(regexp.QuoteMeta(selectForUpdate)).
		WithArgs("chk_1").
		WillReturnRows(checkoutRow(StatusPending, `[]`))
	mockDB.ExpectQuery(regexp.QuoteMeta(updateCheckout)).
		WithArgs(StatusHeld, int64(7000), "", sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mockDB.ExpectCommit()

	reconciler.On("ApplyDelta", ctx, mock.Anything, int64(42), int64(-3000), wallet.RejectInsufficient).
		Return(int64(7000), nil)

	updated, d, err := repo.ApplyEvent(ctx, "chk_1", "evt_1", EventHold, 0, json.RawMessage(`{"event_id":"evt_1"}`))
	require.NoError(t, err)
	require.Equal(t, int64(-3000), d.DeltaCents)
	require.Equal(t, StatusHeld, updated.Status)
	require.Equal(t, int64(7000), updated.BalanceAfter)
	require.True(t, updated.ProviderData.Contains("evt_1"))

	reconciler.AssertExpectations(t)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestApplyEvent_DuplicateUnderLock(t *testing.T) {
	repo, reconciler, mockDB, close := setupLedgerMock(t)
	defer close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(regexp.QuoteMeta(selectForUpdate)).
		WithArgs("chk_1").
		WillReturnRows(checkoutRow(StatusHeld, `["evt_1"]`))
	mockDB.ExpectRollback()

	_, _, err := repo.ApplyEvent(context.Background(), "chk_1", "evt_1", EventHold, 0, nil)
	require.ErrorIs(t, err, ErrDuplicateEvent)

	reconciler.AssertNotCalled(t, "ApplyDelta")
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestApplyEvent_InsufficientBalanceRollsBack(t *testing.T) {
	repo, reconciler, mockDB, close := setupLedgerMock(t)
	defer close()

	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(regexp.QuoteMeta(selectForUpdate)).
		WithArgs("chk_1").
		WillReturnRows(checkoutRow(StatusPending, `[]`))
	mockDB.ExpectRollback()

	reconciler.On("ApplyDelta", ctx, mock.Anything, int64(42), int64(-3000), wallet.RejectInsufficient).
		Return(int64(0), wallet.ErrInsufficientBalance)

	_, _, err := repo.ApplyEvent(ctx, "chk_1", "evt_1", EventHold, 0, nil)
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestApplyEvent_NotFound(t *testing.T) {
	repo, _, mockDB, close := setupLedgerMock(t)
	defer close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(regexp.QuoteMeta(selectForUpdate)).
		WithArgs("chk_missing").
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectRollback()

	_, _, err := repo.ApplyEvent(context.Background(), "chk_missing", "evt_1", EventFailed, 0, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApplyEvent_NoOpStillRecordsEvent(t *testing.T) {
	repo, reconciler, mockDB, close := setupLedgerMock(t)
	defer close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(regexp.QuoteMeta(selectForUpdate)).
		WithArgs("chk_1").
		WillReturnRows(checkoutRow(StatusSucceeded, `["evt_1"]`))
	mockDB.ExpectQuery(regexp.QuoteMeta(updateCheckout)).
		WithArgs(StatusSucceeded, int64(10000), "", sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mockDB.ExpectCommit()

	updated, d, err := repo.ApplyEvent(context.Background(), "chk_1", "evt_2", EventSucceeded, 0, nil)
	require.NoError(t, err)
	require.True(t, d.NoOp)
	require.Equal(t, StatusSucceeded, updated.Status)
	require.True(t, updated.ProviderData.Contains("evt_2"))

	reconciler.AssertNotCalled(t, "ApplyDelta")
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestApplyEvent_DecidesOnLockedRowNotCallerSnapshot(t *testing.T) {
	repo, reconciler, mockDB, close := setupLedgerMock(t)
	defer close()

	ctx := context.Background()

	// Two distinct in-flight events for one withdrawal, both of whose callers
	// read the checkout while it was still pending. The hold acquires the
	// lock first and debits.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery(regexp.QuoteMeta(selectForUpdate)).
		WithArgs("chk_1").
		WillReturnRows(checkoutRow(StatusPending, `[]`))
	mockDB.ExpectQuery(regexp.QuoteMeta(updateCheckout)).
		WithArgs(StatusHeld, int64(7000), "", sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mockDB.ExpectCommit()

	// The succeeded event acquires the lock second; the row it reads says
	// held, so the decision carries no second debit.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery(regexp.QuoteMeta(selectForUpdate)).
		WithArgs("chk_1").
		WillReturnRows(sqlmock.NewRows(checkoutColumns()).
			AddRow(1, "chk_1", 42, "withdrawal", 3000, "held", 7000, "", []byte(`{"processed_events":["evt_1"]}`), time.Now(), time.Now()))
	mockDB.ExpectQuery(regexp.QuoteMeta(updateCheckout)).
		WithArgs(StatusSucceeded, int64(7000), "", sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mockDB.ExpectCommit()

	reconciler.On("ApplyDelta", ctx, mock.Anything, int64(42), int64(-3000), wallet.RejectInsufficient).
		Return(int64(7000), nil).Once()

	_, hold, err := repo.ApplyEvent(ctx, "chk_1", "evt_1", EventHold, 0, nil)
	require.NoError(t, err)
	require.Equal(t, int64(-3000), hold.DeltaCents)

	updated, succeeded, err := repo.ApplyEvent(ctx, "chk_1", "evt_2", EventSucceeded, 0, nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), succeeded.DeltaCents)
	require.Equal(t, StatusSucceeded, updated.Status)

	reconciler.AssertNumberOfCalls(t, "ApplyDelta", 1)
	require.NoError(t, mockDB.ExpectationsWereMet())
}
