package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/pixmoji/backend/internal/audit"
	"github.com/pixmoji/backend/internal/models"
)

// LedgerService is the sole writer of account balances. Every balance
// mutation appends exactly one audit transaction inside the same database
// transaction, so the cached balance is always reconstructable as
// StartingBalance + sum(token_transactions.amount).
type LedgerService struct {
	db    *sql.DB
	audit *audit.Logger
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db, audit: audit.NewLogger()}
}

// GetAccount returns the account for email, creating it with the starting
// bonus on first touch. Creation uses an upsert with conflict-ignore so
// concurrent first touches cannot double-create or double-grant the bonus.
// The second return value reports whether this call created the account.
func (s *LedgerService) GetAccount(ctx context.Context, email string) (*models.Account, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, wrapStorageError(err)
	}
	defer tx.Rollback()

	account, created, err := s.getOrCreateAccountTx(ctx, tx, email)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, wrapStorageError(err)
	}

	if created {
		log.Printf("[LEDGER] New account %s created with %d bonus tokens", email, models.StartingBalance)
	}
	return account, created, nil
}

// Deduct atomically spends one token. It returns false with no rows written
// when the balance is zero or below. Row-level locking serializes concurrent
// deductions against the same account: two callers racing on balance=1 get
// exactly one success.
func (s *LedgerService) Deduct(ctx context.Context, email string) (bool, *models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, wrapStorageError(err)
	}
	defer tx.Rollback()

	if _, _, err := s.getOrCreateAccountTx(ctx, tx, email); err != nil {
		return false, nil, err
	}

	account, err := s.lockAccountTx(ctx, tx, email)
	if err != nil {
		return false, nil, err
	}

	if account.Balance <= 0 {
		// No usage row, no balance change. Commit so a first-touch
		// bonus granted above still lands.
		if err := tx.Commit(); err != nil {
			return false, nil, wrapStorageError(err)
		}
		return false, account, nil
	}

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance - 1, total_used = total_used + 1, updated_at = $1
		WHERE email = $2
		RETURNING id, email, balance, total_used, created_at, updated_at`,
		now, email).Scan(&account.ID, &account.Email, &account.Balance,
		&account.TotalUsed, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return false, nil, wrapStorageError(err)
	}

	if err := s.appendTransactionTx(ctx, tx, email, models.TxKindUsage, -1, "Emoji generation", ""); err != nil {
		return false, nil, err
	}

	if err := tx.Commit(); err != nil {
		return false, nil, wrapStorageError(err)
	}

	s.audit.LogLedger("DEDUCT", email, -1, map[string]int{"balance": account.Balance})
	log.Printf("[LEDGER] Deducted 1 token from %s, %d remaining", email, account.Balance)
	return true, account, nil
}

// Credit adds tokens to an account and appends the matching audit row in
// one transaction. When externalEventID is set (purchases credited from the
// payment webhook) a replayed event is a no-op that returns the current
// account unchanged.
func (s *LedgerService) Credit(ctx context.Context, email string, amount int, kind, description, externalEventID string) (*models.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	switch kind {
	case models.TxKindPurchase, models.TxKindRefund, models.TxKindBonus:
	default:
		return nil, fmt.Errorf("invalid credit kind %q", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	defer tx.Rollback()

	if externalEventID != "" {
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM token_transactions
				WHERE external_event_id = $1 AND kind = $2
			)`, externalEventID, kind).Scan(&exists)
		if err != nil {
			return nil, wrapStorageError(err)
		}
		if exists {
			account, _, err := s.getOrCreateAccountTx(ctx, tx, email)
			if err != nil {
				return nil, err
			}
			if err := tx.Commit(); err != nil {
				return nil, wrapStorageError(err)
			}
			log.Printf("[LEDGER] Duplicate credit event %s for %s ignored", externalEventID, email)
			return account, nil
		}
	}

	if _, _, err := s.getOrCreateAccountTx(ctx, tx, email); err != nil {
		return nil, err
	}

	if _, err := s.lockAccountTx(ctx, tx, email); err != nil {
		return nil, err
	}

	account := &models.Account{}
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = $2
		WHERE email = $3
		RETURNING id, email, balance, total_used, created_at, updated_at`,
		amount, time.Now(), email).Scan(&account.ID, &account.Email, &account.Balance,
		&account.TotalUsed, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, wrapStorageError(err)
	}

	if err := s.appendTransactionTx(ctx, tx, email, kind, amount, description, externalEventID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorageError(err)
	}

	s.audit.LogLedger("CREDIT", email, amount, map[string]any{"kind": kind, "balance": account.Balance})
	log.Printf("[LEDGER] Credited %d tokens (%s) to %s, balance now %d", amount, kind, email, account.Balance)
	return account, nil
}

// ListTransactions returns the account's audit log, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, email string, limit int) ([]models.TokenTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_email, kind, amount, description, external_event_id, created_at
		FROM token_transactions
		WHERE account_email = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, email, limit)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	defer rows.Close()

	transactions := []models.TokenTransaction{}
	for rows.Next() {
		var t models.TokenTransaction
		var eventID sql.NullString
		if err := rows.Scan(&t.ID, &t.AccountEmail, &t.Kind, &t.Amount,
			&t.Description, &eventID, &t.CreatedAt); err != nil {
			return nil, wrapStorageError(err)
		}
		if eventID.Valid {
			t.ExternalEventID = eventID.String
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageError(err)
	}

	return transactions, nil
}

// getOrCreateAccountTx inserts the account with the starting bonus if it
// does not exist yet, then reads it back. The bonus audit row is written
// only by the caller whose insert actually landed.
func (s *LedgerService) getOrCreateAccountTx(ctx context.Context, tx *sql.Tx, email string) (*models.Account, bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (email, balance, total_used, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (email) DO NOTHING`, email, models.StartingBalance)
	if err != nil {
		return nil, false, wrapStorageError(err)
	}

	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
		if err := s.appendTransactionTx(ctx, tx, email, models.TxKindBonus,
			models.StartingBalance, "Welcome bonus", ""); err != nil {
			return nil, false, err
		}
	}

	account := &models.Account{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, email, balance, total_used, created_at, updated_at
		FROM accounts
		WHERE email = $1`, email).Scan(&account.ID, &account.Email, &account.Balance,
		&account.TotalUsed, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, false, wrapStorageError(err)
	}

	return account, created, nil
}

// lockAccountTx takes the row lock that serializes balance mutations for
// one account.
func (s *LedgerService) lockAccountTx(ctx context.Context, tx *sql.Tx, email string) (*models.Account, error) {
	account := &models.Account{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, email, balance, total_used, created_at, updated_at
		FROM accounts
		WHERE email = $1
		FOR UPDATE`, email).Scan(&account.ID, &account.Email, &account.Balance,
		&account.TotalUsed, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	return account, nil
}

func (s *LedgerService) appendTransactionTx(ctx context.Context, tx *sql.Tx, email, kind string, amount int, description, externalEventID string) error {
	var eventID any
	if externalEventID != "" {
		eventID = externalEventID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO token_transactions (account_email, kind, amount, description, external_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		email, kind, amount, description, eventID, time.Now())
	if err != nil {
		return wrapStorageError(err)
	}
	return nil
}
