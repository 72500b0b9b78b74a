package persistence

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stockroom/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// isUniqueViolation reports whether err is a unique-constraint failure.
// Dialects opened with TranslateError return gorm.ErrDuplicatedKey; the
// message check covers connections opened without it.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// isConnectionFailure reports whether err means the partition could not be
// reached, as opposed to a statement being rejected.
func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// translateError maps driver errors onto domain error kinds. Domain errors
// pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case isUniqueViolation(err):
		return shared.WrapKind(shared.KindDuplicateBarcode, "Barcode already exists in this tenant", err)
	case isConnectionFailure(err):
		return shared.WrapKind(shared.KindConnection, "Tenant storage is unreachable", err)
	}
	return err
}
