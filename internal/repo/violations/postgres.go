package violations

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	PgUniqueErrCode = "23505" // see https://www.postgresql.org/docs/16/errcodes-appendix.html
)

// IsUniqueConstraint reports a unique constraint violation, either raw from
// pgx or already translated by gorm.
func IsUniqueConstraint(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgError *pgconn.PgError

	return errors.As(err, &pgError) && pgError.Code == PgUniqueErrCode
}
