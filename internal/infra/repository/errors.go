package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/totegamma/portfolio/internal/domain"
)

// classify converts a driver or gorm error into the domain taxonomy. Errors
// that already carry a kind pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var kinded domain.KindedError
	if errors.As(err, &kinded) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError{Resource: "case study"}
	}

	return domain.StorageError{Op: op, Retryable: isTransient(err), Cause: err}
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// a lost race on a unique index is resolved by re-running the transaction
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientSQLState(pgErr.Code)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isTransientSQLState(code string) bool {
	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"53300", // too_many_connections
		"55P03", // lock_not_available
		"57P01", // admin_shutdown
		"57P02", // crash_shutdown
		"57P03": // cannot_connect_now
		return true
	}
	// class 08: connection exception
	return len(code) == 5 && code[:2] == "08"
}
