package repositories

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// FieldErrors maps a driver constraint violation to a field -> reason map.
//
// It returns nil when err is not a constraint violation or the driver did not name a column,
// in which case callers treat the failure as an internal error.
func FieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if !strings.HasPrefix(pgErr.Code, "23") { // integrity_constraint_violation class
			return nil
		}
		field := pgErr.ColumnName
		if field == "" {
			field = pgErr.ConstraintName
		}
		if field == "" {
			return nil
		}
		return map[string]string{field: pgErr.Message}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		return sqliteFieldErrors(liteErr.Error())
	}

	return nil
}

// sqliteFieldErrors parses messages such as
// "NOT NULL constraint failed: lessons.owner_id" and "CHECK constraint failed: sequence_id > 0".
func sqliteFieldErrors(msg string) map[string]string {
	for _, kind := range []string{"NOT NULL", "UNIQUE", "CHECK"} {
		prefix := kind + " constraint failed: "
		idx := strings.Index(msg, prefix)
		if idx < 0 {
			continue
		}

		detail := strings.TrimSpace(msg[idx+len(prefix):])
		fields := strings.FieldsFunc(detail, func(r rune) bool {
			return r == ',' || r == ' ' || r == '>' || r == '<' || r == '=' || r == '(' || r == ')'
		})
		if len(fields) == 0 {
			return nil
		}

		field := fields[0]
		if dot := strings.LastIndex(field, "."); dot >= 0 {
			field = field[dot+1:]
		}
		return map[string]string{field: strings.ToLower(kind) + " constraint failed"}
	}
	return nil
}
