package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/profile"
	svcerr "github.com/nitemap/nitemap/internal/errors"
)

func profileRows(points, reviews int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "nickname", "role", "points", "review_count", "level", "blocked", "created_at", "updated_at",
	}).AddRow("p1", "nina", "USER", points, reviews, 1, false, now, now)
}

func TestCreditRunsBalanceAndLedgerInOneTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE profiles").
		WithArgs("p1", 100, 1, sqlmock.AnyArg()).
		WillReturnRows(profileRows(100, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := store.Credit(context.Background(), "p1", true, ledger.Entry{
		Amount: 100, Reason: ledger.ReasonPostAward, RefID: "post1",
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if p.Points != 100 || p.ReviewCount != 1 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreditRollsBackWhenLedgerAppendFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE profiles").WillReturnRows(profileRows(100, 0))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err = store.Credit(context.Background(), "p1", false, ledger.Entry{
		Amount: 20, Reason: ledger.ReasonPostAward,
	})
	if err == nil {
		t.Fatalf("expected error when ledger append fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	store := New(db)

	_, err = store.Credit(context.Background(), "p1", false, ledger.Entry{Amount: -5})
	if !svcerr.IsCode(err, svcerr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDebitIfSufficientRejectsInsufficientBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE profiles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT points FROM profiles").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(50))
	mock.ExpectRollback()

	_, err = store.DebitIfSufficient(context.Background(), "p1", ledger.Entry{
		Amount: -200, Reason: ledger.ReasonRedemption,
	})
	if !svcerr.IsCode(err, svcerr.CodeInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDebitIfSufficientDebitsAndAppends(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE profiles").
		WithArgs("p1", 200, sqlmock.AnyArg()).
		WillReturnRows(profileRows(300, 0))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := store.DebitIfSufficient(context.Background(), "p1", ledger.Entry{
		Amount: -200, Reason: ledger.ReasonRedemption, RefID: "item1",
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if p.Points != 300 {
		t.Fatalf("unexpected balance: %d", p.Points)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConsumeCouponConflictsWhenAlreadyUsed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectQuery("UPDATE coupons").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT is_used FROM coupons").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"is_used"}).AddRow(true))

	_, err = store.ConsumeCoupon(context.Background(), "c1", "SER-1", time.Now().UTC())
	if !svcerr.IsCode(err, svcerr.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	if err := RunMigrations(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()

	p, err := store.CreateProfile(ctx, profile.Profile{Nickname: "nina", Role: profile.RoleUser, Level: 1})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	if _, err := store.Credit(ctx, p.ID, true, ledger.Entry{
		Amount: 100, Reason: ledger.ReasonPostAward,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	entries, err := store.ListLedger(ctx, p.ID)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != 100 {
		t.Fatalf("unexpected ledger: %+v", entries)
	}
}
