// Package repository holds the data access layer.  Repositories scan rows
// with sqlx and build the dynamic queries with squirrel.  The sentinel
// values below let the service layer tell failure scenarios apart without
// inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the target row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique key,
// such as a second bank with the same ABA code.
var ErrDuplicate = errors.New("duplicate key")

// ErrConflict is returned when a delete cannot proceed because other rows
// still reference the target, e.g. a bank that still has reports.
var ErrConflict = errors.New("conflict")

// isDuplicate reports whether err is a unique constraint violation on
// either supported driver.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
