package sqlerr

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsConnectionBroken reports whether err means the physical connection is
// unusable: it must be discarded and a new one opened.
func IsConnectionBroken(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if code, ok := sqlState(err); ok {
		return strings.HasPrefix(code, pgConnectionClass) ||
			code == pgAdminShutdown || code == pgCrashShutdown || code == pgCannotConnectNow
	}
	if n, ok := mysqlNumber(err); ok {
		return n == mysqlServerShutdown || n == mysqlServerGone || n == mysqlServerLost
	}
	return containsAny(err.Error(),
		"bad connection",
		"connection reset by peer",
		"broken pipe",
		"server has gone away",
	)
}

// IsConcurrentUpdate reports whether err is a deadlock, a serialization
// failure or a lock timeout. The caller may retry its whole transaction.
func IsConcurrentUpdate(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqlState(err); ok {
		return code == pgSerializationFail || code == pgDeadlockDetected || code == pgLockNotAvailable
	}
	if n, ok := mysqlNumber(err); ok {
		return n == mysqlDeadlock || n == mysqlLockWaitTimeout
	}
	if n, ok := mssqlNumber(err); ok {
		return n == mssqlDeadlock || n == mssqlLockTimeout || n == mssqlSnapshotConflict
	}
	if e, ok := asError[sqliteCoder](err); ok {
		// Extended result codes keep the primary code in the low byte.
		switch e.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return containsAny(err.Error(),
		"database is locked",         // SQLite
		"database table is locked",   // SQLite
		"deadlock detected",          // Postgres
		"could not serialize access", // Postgres
		"Deadlock found",             // MySQL
		"Lock wait timeout exceeded", // MySQL
		"was deadlocked on lock",     // SQL Server
	)
}
