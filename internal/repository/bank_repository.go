package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bank-report-review/internal/model"
)

// BankRepo provides CRUD access to the banks table.
type BankRepo struct {
	db *sqlx.DB
}

// NewBankRepo constructs a BankRepo with the given DB handle.
func NewBankRepo(db *sqlx.DB) *BankRepo {
	return &BankRepo{db: db}
}

// List returns every bank ordered by name.
func (r *BankRepo) List(ctx context.Context) ([]model.Bank, error) {
	banks := []model.Bank{}
	err := r.db.SelectContext(ctx, &banks, "SELECT id, aba_code, name FROM banks ORDER BY name, id")
	return banks, err
}

// GetByID retrieves a bank or ErrNotFound.
func (r *BankRepo) GetByID(ctx context.Context, id int64) (model.Bank, error) {
	var b model.Bank
	err := r.db.GetContext(ctx, &b, "SELECT id, aba_code, name FROM banks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

// Create inserts a bank and sets its ID.  A taken ABA code yields
// ErrDuplicate.
func (r *BankRepo) Create(ctx context.Context, b *model.Bank) error {
	res, err := r.db.ExecContext(ctx, "INSERT INTO banks (aba_code, name) VALUES (?, ?)", b.ABACode, b.Name)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

// Update overwrites the code and name of bank b.ID.  It returns ErrNotFound
// when no such bank exists and ErrDuplicate when the code belongs to another
// bank.
func (r *BankRepo) Update(ctx context.Context, b model.Bank) error {
	res, err := r.db.ExecContext(ctx, "UPDATE banks SET aba_code = ?, name = ? WHERE id = ?", b.ABACode, b.Name, b.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	// mysql connections use clientFoundRows so unchanged rows still count
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a bank that no report references.  The existence check,
// the report count and the delete run in one transaction.  When reports
// remain the count is returned together with ErrConflict.
func (r *BankRepo) Delete(ctx context.Context, id int64) (reports int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	// Ensure rollback or commit at the end
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var exists int
	if err = tx.GetContext(ctx, &exists, "SELECT COUNT(*) FROM banks WHERE id = ?", id); err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrNotFound
	}
	if err = tx.GetContext(ctx, &reports, "SELECT COUNT(*) FROM reports WHERE bank_id = ?", id); err != nil {
		return 0, err
	}
	if reports > 0 {
		return reports, ErrConflict
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM banks WHERE id = ?", id); err != nil {
		return 0, err
	}
	return 0, nil
}
