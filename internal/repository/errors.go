package repository

import (
	"errors"
	"fmt"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUndefinedTable = "42P01"

// classifyError maps driver errors to index error kinds. Anything that is not
// a server-side error means the store could not be reached.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUndefinedTable {
			return domain.Wrapf(domain.ErrCollectionNotFound, "%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return domain.Wrapf(domain.ErrIndexUnavailable, "%s: %w", op, err)
}
