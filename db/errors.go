package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"toolhub/lifecycle"
)

// Postgres SQLSTATE codes the repo reacts to.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgInvalidText          = "22P02"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
	pgCrashShutdown        = "57P02"
	pgCannotConnectNow     = "57P03"
)

// classify maps driver and gorm errors onto the lifecycle sentinels. Errors it
// doesn't recognise pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", lifecycle.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", lifecycle.ErrConflictingUpdate, pgErr.ConstraintName)
		case pgForeignKeyViolation, pgInvalidText:
			return fmt.Errorf("%w: %s", lifecycle.ErrNotFound, pgErr.Message)
		case pgSerializationFailure, pgDeadlockDetected, pgTooManyConnections,
			pgAdminShutdown, pgCrashShutdown, pgCannotConnectNow:
			return fmt.Errorf("%w: %w", lifecycle.ErrStoreUnavailable, err)
		}
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return fmt.Errorf("%w: %w", lifecycle.ErrStoreUnavailable, err)
		}
		return err
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		pgconn.Timeout(err) ||
		errors.As(err, &connErr) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", lifecycle.ErrStoreUnavailable, err)
	}
	return err
}

// wrap adds what failed ("loan <id>") in front of a classified error.
func wrap(err error, what string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, classify(err))
}
