package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixmoji/backend/internal/models"
)

func accountRows(email string, balance, totalUsed int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "balance", "total_used", "created_at", "updated_at"}).
		AddRow(1, email, balance, totalUsed, now, now)
}

func expectExistingAccount(mock sqlmock.Sqlmock, email string, balance, totalUsed int) {
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(email, models.StartingBalance).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, email, balance, total_used, created_at, updated_at").
		WithArgs(email).
		WillReturnRows(accountRows(email, balance, totalUsed))
}

func TestLedgerService_GetAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("first touch grants bonus", func(t *testing.T) {
		email := "new@example.com"

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(email, models.StartingBalance).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO token_transactions").
			WithArgs(email, models.TxKindBonus, models.StartingBalance, "Welcome bonus", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT id, email, balance, total_used, created_at, updated_at").
			WithArgs(email).
			WillReturnRows(accountRows(email, models.StartingBalance, 0))
		mock.ExpectCommit()

		account, created, err := service.GetAccount(context.Background(), email)
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, models.StartingBalance, account.Balance)
		assert.Equal(t, 0, account.TotalUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing account is returned unchanged", func(t *testing.T) {
		email := "known@example.com"

		mock.ExpectBegin()
		expectExistingAccount(mock, email, 10, 15)
		mock.ExpectCommit()

		account, created, err := service.GetAccount(context.Background(), email)
		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, 10, account.Balance)
		assert.Equal(t, 15, account.TotalUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Deduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("successful deduction writes one usage row", func(t *testing.T) {
		email := "user@example.com"

		mock.ExpectBegin()
		expectExistingAccount(mock, email, 5, 20)
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(email).
			WillReturnRows(accountRows(email, 5, 20))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(sqlmock.AnyArg(), email).
			WillReturnRows(accountRows(email, 4, 21))
		mock.ExpectExec("INSERT INTO token_transactions").
			WithArgs(email, models.TxKindUsage, -1, "Emoji generation", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		ok, account, err := service.Deduct(context.Background(), email)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 4, account.Balance)
		assert.Equal(t, 21, account.TotalUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero balance returns false with no writes", func(t *testing.T) {
		email := "broke@example.com"

		mock.ExpectBegin()
		expectExistingAccount(mock, email, 0, 25)
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(email).
			WillReturnRows(accountRows(email, 0, 25))
		mock.ExpectCommit()

		ok, account, err := service.Deduct(context.Background(), email)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, account.Balance)
		assert.Equal(t, 25, account.TotalUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage failure rolls back", func(t *testing.T) {
		email := "user@example.com"

		mock.ExpectBegin()
		expectExistingAccount(mock, email, 5, 20)
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(email).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		ok, _, err := service.Deduct(context.Background(), email)
		assert.False(t, ok)
		var storageErr *StorageError
		assert.ErrorAs(t, err, &storageErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("purchase credit appends audit row in same transaction", func(t *testing.T) {
		email := "buyer@example.com"

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("evt_1", models.TxKindPurchase).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		expectExistingAccount(mock, email, 3, 22)
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(email).
			WillReturnRows(accountRows(email, 3, 22))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(100, sqlmock.AnyArg(), email).
			WillReturnRows(accountRows(email, 103, 22))
		mock.ExpectExec("INSERT INTO token_transactions").
			WithArgs(email, models.TxKindPurchase, 100, "Popular Pack purchase", "evt_1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		account, err := service.Credit(context.Background(), email, 100,
			models.TxKindPurchase, "Popular Pack purchase", "evt_1")
		assert.NoError(t, err)
		assert.Equal(t, 103, account.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replayed event id is a no-op", func(t *testing.T) {
		email := "buyer@example.com"

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("evt_1", models.TxKindPurchase).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		expectExistingAccount(mock, email, 103, 22)
		mock.ExpectCommit()

		account, err := service.Credit(context.Background(), email, 100,
			models.TxKindPurchase, "Popular Pack purchase", "evt_1")
		assert.NoError(t, err)
		assert.Equal(t, 103, account.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refund credit carries no event id", func(t *testing.T) {
		email := "user@example.com"

		mock.ExpectBegin()
		expectExistingAccount(mock, email, 4, 21)
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(email).
			WillReturnRows(accountRows(email, 4, 21))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(1, sqlmock.AnyArg(), email).
			WillReturnRows(accountRows(email, 5, 21))
		mock.ExpectExec("INSERT INTO token_transactions").
			WithArgs(email, models.TxKindRefund, 1, "Refund - Generation failed", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		account, err := service.Credit(context.Background(), email, 1,
			models.TxKindRefund, "Refund - Generation failed", "")
		assert.NoError(t, err)
		assert.Equal(t, 5, account.Balance)
		assert.Equal(t, 21, account.TotalUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := service.Credit(context.Background(), "user@example.com", 0,
			models.TxKindRefund, "nothing", "")
		assert.Error(t, err)
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		_, err := service.Credit(context.Background(), "user@example.com", 1,
			models.TxKindUsage, "usage is not a credit", "")
		assert.Error(t, err)
	})
}

func TestLedgerService_ListTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	email := "user@example.com"
	now := time.Now()
	mock.ExpectQuery("FROM token_transactions").
		WithArgs(email, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_email", "kind", "amount", "description", "external_event_id", "created_at"}).
			AddRow(3, email, models.TxKindUsage, -1, "Emoji generation", nil, now).
			AddRow(2, email, models.TxKindPurchase, 100, "Popular Pack purchase", "evt_1", now.Add(-time.Hour)).
			AddRow(1, email, models.TxKindBonus, 25, "Welcome bonus", nil, now.Add(-2*time.Hour)))

	transactions, err := service.ListTransactions(context.Background(), email, 0)
	assert.NoError(t, err)
	require.Len(t, transactions, 3)
	assert.Equal(t, models.TxKindUsage, transactions[0].Kind)
	assert.Equal(t, "evt_1", transactions[1].ExternalEventID)
	assert.Empty(t, transactions[2].ExternalEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
