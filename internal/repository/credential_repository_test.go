package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"copytrade/internal/models"
)

// ============================================================
// CredentialRepository Tests
// ============================================================

var credentialRowColumns = []string{"id", "user_id", "exchange", "account_type", "api_key", "api_secret", "passphrase", "created_at", "updated_at"}

func TestNewCredentialRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewCredentialRepository(db)
	if repo == nil {
		t.Fatal("NewCredentialRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestCredentialRepositoryListByUser(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectedLen int
		expectError bool
	}{
		{
			name: "two credentials",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(credentialRowColumns).
					AddRow(1, 7, "bybit", "futures", "enc:v1:a", "enc:v1:b", "", now, now).
					AddRow(2, 7, "okx", "spot", "enc:v1:c", "enc:v1:d", "enc:v1:e", now, now)
				mock.ExpectQuery(`SELECT .+ FROM exchange_credentials WHERE user_id = \$1`).
					WithArgs(int64(7)).
					WillReturnRows(rows)
			},
			expectedLen: 2,
		},
		{
			name: "no credentials",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM exchange_credentials WHERE user_id = \$1`).
					WithArgs(int64(7)).
					WillReturnRows(sqlmock.NewRows(credentialRowColumns))
			},
			expectedLen: 0,
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM exchange_credentials`).
					WillReturnError(errors.New("connection refused"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewCredentialRepository(db)
			creds, err := repo.ListByUser(context.Background(), 7)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if creds == nil || len(creds) != tt.expectedLen {
					t.Errorf("expected %d credentials, got %v", tt.expectedLen, creds)
				}
				if tt.expectedLen > 0 && creds[0].AccountType != models.AccountTypeFutures {
					t.Errorf("expected futures account type, got %s", creds[0].AccountType)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestCredentialRepositoryListByExchange(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM exchange_credentials WHERE exchange = \$1`).
		WithArgs("binance").
		WillReturnRows(sqlmock.NewRows(credentialRowColumns).
			AddRow(3, 1, "binance", "spot", "k", "s", "", now, now).
			AddRow(4, 2, "binance", "futures", "k", "s", "", now, now))

	creds, err := NewCredentialRepository(db).ListByExchange(context.Background(), "binance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creds) != 2 || creds[1].UserID != 2 {
		t.Errorf("unexpected result: %+v", creds)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCredentialRepositoryUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	created := time.Now().Add(-time.Hour)
	mock.ExpectQuery(`INSERT INTO exchange_credentials .+ ON CONFLICT \(user_id, exchange, account_type\) DO UPDATE`).
		WithArgs(int64(5), "okx", models.AccountTypeSpot, "enc:v1:k", "enc:v1:s", "enc:v1:p", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, created))

	cred := &models.ExchangeCredential{
		UserID:      5,
		Exchange:    "okx",
		AccountType: models.AccountTypeSpot,
		APIKey:      "enc:v1:k",
		APISecret:   "enc:v1:s",
		Passphrase:  "enc:v1:p",
	}
	if err := NewCredentialRepository(db).Upsert(context.Background(), cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.ID != 11 {
		t.Errorf("expected ID=11, got %d", cred.ID)
	}
	if !cred.CreatedAt.Equal(created) {
		t.Errorf("created_at not scanned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCredentialRepositoryUpdateSecrets(t *testing.T) {
	tests := []struct {
		name        string
		result      driverResult
		execErr     error
		expectError error
	}{
		{name: "success", result: driverResult{rows: 1}},
		{name: "not found", result: driverResult{rows: 0}, expectError: ErrCredentialNotFound},
		{name: "database error", execErr: sql.ErrConnDone, expectError: sql.ErrConnDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			exp := mock.ExpectExec(`UPDATE exchange_credentials SET api_key = \$1`).
				WithArgs("enc:v1:k", "enc:v1:s", "", sqlmock.AnyArg(), int64(3))
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.result.rows))
			}

			err = NewCredentialRepository(db).UpdateSecrets(context.Background(), 3, "enc:v1:k", "enc:v1:s", "")
			if !errors.Is(err, tt.expectError) {
				t.Errorf("expected %v, got %v", tt.expectError, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestCredentialRepositoryDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM exchange_credentials WHERE user_id = \$1 AND exchange = \$2 AND account_type = \$3`).
		WithArgs(int64(1), "bybit", models.AccountTypeFutures).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM exchange_credentials`).
		WithArgs(int64(1), "bybit", models.AccountTypeFutures).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewCredentialRepository(db)
	if err := repo.Delete(context.Background(), 1, "bybit", models.AccountTypeFutures); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Delete(context.Background(), 1, "bybit", models.AccountTypeFutures); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

type driverResult struct {
	rows int64
}
