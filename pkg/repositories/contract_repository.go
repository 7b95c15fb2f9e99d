package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/database"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	defaultListLimit = 50
	maxListLimit     = 500
)

// ContractStore is the write-side store used by the reconciler.
type ContractStore interface {
	// FindContractByExternalID returns nil when no contract has the id.
	FindContractByExternalID(ctx context.Context, externalID string) (*models.Contract, error)
	// FindContractByNaturalKey returns nil when no contract has the key.
	FindContractByNaturalKey(ctx context.Context, naturalKey string) (*models.Contract, error)
	// CreateContract inserts c. A dedup-key collision returns apperrors.ErrConflict.
	CreateContract(ctx context.Context, c *models.Contract) error
	// UpdateContract refreshes the mutable columns of an existing contract.
	UpdateContract(ctx context.Context, c *models.Contract) error
	// CreateAmendments inserts amendments not yet stored and returns how many were new.
	CreateAmendments(ctx context.Context, amendments []*models.Amendment) (int, error)

	// FindSupplierByTaxID returns nil when no supplier has the tax id.
	FindSupplierByTaxID(ctx context.Context, taxID string) (*models.Supplier, error)
	// FindSupplierByName returns nil when no supplier without a tax id has the name.
	FindSupplierByName(ctx context.Context, name string) (*models.Supplier, error)
	CreateSupplier(ctx context.Context, s *models.Supplier) error
	// FlagSupplierConflict marks a supplier for manual review without changing its name.
	FlagSupplierConflict(ctx context.Context, supplierID uuid.UUID, conflictName string) error

	CountContracts(ctx context.Context) (int, error)
	CountSuppliers(ctx context.Context) (int, error)
	CountAmendments(ctx context.Context) (int, error)
	CountInquiries(ctx context.Context) (int, error)

	// RunInTx runs fn in one transaction; store calls made with the ctx passed to fn join it.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ContractReader serves the cached read endpoints.
type ContractReader interface {
	ListContracts(ctx context.Context, filter models.ContractFilter) (*models.ContractPage, error)
	// GetContract returns nil when the contract does not exist.
	GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	Stats(ctx context.Context) (*models.ContractStats, error)
}

// ContractRepository is the PostgreSQL store, serving both sides.
type ContractRepository interface {
	ContractStore
	ContractReader
}

type contractRepository struct {
	db     *database.DB
	tables Tables
}

var _ ContractRepository = (*contractRepository)(nil)

// NewContractRepository creates a PostgreSQL-backed store over the given tables.
func NewContractRepository(db *database.DB, tables Tables) ContractRepository {
	return &contractRepository{db: db, tables: tables}
}

func (r *contractRepository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, fn)
}

const contractColumns = `id, external_id, natural_key, title, amount, category, signed_on,
	supplier_id, supplier_name, supplier_tax_id, authority, procurement_type,
	latitude, longitude, created_at, updated_at`

func (r *contractRepository) FindContractByExternalID(ctx context.Context, externalID string) (*models.Contract, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE external_id = $1`, contractColumns, r.tables.Contracts)
	return r.findContract(ctx, query, externalID)
}

func (r *contractRepository) FindContractByNaturalKey(ctx context.Context, naturalKey string) (*models.Contract, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE natural_key = $1 AND external_id IS NULL`, contractColumns, r.tables.Contracts)
	return r.findContract(ctx, query, naturalKey)
}

func (r *contractRepository) GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, contractColumns, r.tables.Contracts)
	return r.findContract(ctx, query, id)
}

func (r *contractRepository) findContract(ctx context.Context, query string, arg any) (*models.Contract, error) {
	c, err := scanContract(r.db.Conn(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contract: %w", err)
	}
	return c, nil
}

func (r *contractRepository) CreateContract(ctx context.Context, c *models.Contract) error {
	now := time.Now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO %s (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.tables.Contracts)

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		c.ID,
		nullIfEmpty(c.ExternalID),
		c.NaturalKey,
		c.Title,
		c.Amount,
		c.Category,
		c.Date,
		c.SupplierID,
		c.SupplierName,
		c.SupplierTaxID,
		c.Authority,
		c.ProcurementType,
		c.Latitude,
		c.Longitude,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "create contract")
	}
	return nil
}

func (r *contractRepository) UpdateContract(ctx context.Context, c *models.Contract) error {
	c.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $2, amount = $3, category = $4, signed_on = $5,
			supplier_id = $6, supplier_name = $7, supplier_tax_id = $8,
			authority = $9, procurement_type = $10, latitude = $11, longitude = $12,
			updated_at = $13
		WHERE id = $1`, r.tables.Contracts)

	tag, err := r.db.Conn(ctx).Exec(ctx, query,
		c.ID,
		c.Title,
		c.Amount,
		c.Category,
		c.Date,
		c.SupplierID,
		c.SupplierName,
		c.SupplierTaxID,
		c.Authority,
		c.ProcurementType,
		c.Latitude,
		c.Longitude,
		c.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "update contract")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *contractRepository) CreateAmendments(ctx context.Context, amendments []*models.Amendment) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, contract_id, amount, signed_on, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dedup_key) DO NOTHING`, r.tables.Amendments)

	conn := r.db.Conn(ctx)
	inserted := 0
	for _, a := range amendments {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.CreatedAt = time.Now().UTC()

		tag, err := conn.Exec(ctx, query, a.ID, a.ContractID, a.Amount, a.Date, a.DedupKey(), a.CreatedAt)
		if err != nil {
			return inserted, mapWriteError(err, "create amendment")
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const supplierColumns = `id, name, tax_id, founded_on, employee_count, needs_review, conflict_name, created_at, updated_at`

func (r *contractRepository) FindSupplierByTaxID(ctx context.Context, taxID string) (*models.Supplier, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tax_id = $1`, supplierColumns, r.tables.Suppliers)
	return r.findSupplier(ctx, query, taxID)
}

func (r *contractRepository) FindSupplierByName(ctx context.Context, name string) (*models.Supplier, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE name = $1 AND tax_id IS NULL ORDER BY created_at LIMIT 1`,
		supplierColumns, r.tables.Suppliers)
	return r.findSupplier(ctx, query, name)
}

func (r *contractRepository) findSupplier(ctx context.Context, query string, arg any) (*models.Supplier, error) {
	s, err := scanSupplier(r.db.Conn(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find supplier: %w", err)
	}
	return s, nil
}

func (r *contractRepository) CreateSupplier(ctx context.Context, s *models.Supplier) error {
	now := time.Now().UTC()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = now
	s.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO %s (`+supplierColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, r.tables.Suppliers)

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		s.ID,
		s.Name,
		nullIfEmpty(s.TaxID),
		s.FoundedOn,
		s.EmployeeCount,
		s.NeedsReview,
		nullIfEmpty(s.ConflictName),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "create supplier")
	}
	return nil
}

func (r *contractRepository) FlagSupplierConflict(ctx context.Context, supplierID uuid.UUID, conflictName string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET needs_review = TRUE, conflict_name = $2, updated_at = NOW()
		WHERE id = $1`, r.tables.Suppliers)

	tag, err := r.db.Conn(ctx).Exec(ctx, query, supplierID, conflictName)
	if err != nil {
		return mapWriteError(err, "flag supplier conflict")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *contractRepository) CountContracts(ctx context.Context) (int, error) {
	return r.count(ctx, r.tables.Contracts)
}

func (r *contractRepository) CountSuppliers(ctx context.Context) (int, error) {
	return r.count(ctx, r.tables.Suppliers)
}

func (r *contractRepository) CountAmendments(ctx context.Context) (int, error) {
	return r.count(ctx, r.tables.Amendments)
}

func (r *contractRepository) CountInquiries(ctx context.Context) (int, error) {
	return r.count(ctx, r.tables.Inquiries)
}

func (r *contractRepository) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := r.db.Conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func (r *contractRepository) ListContracts(ctx context.Context, filter models.ContractFilter) (*models.ContractPage, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR supplier_name ILIKE $%d OR authority ILIKE $%d)",
			len(args), len(args), len(args)))
	}
	if cat := strings.TrimSpace(filter.Category); cat != "" {
		// categories keep their upstream case; the filter matches any case
		args = append(args, cat)
		where = append(where, fmt.Sprintf("lower(category) = lower($%d)", len(args)))
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	conn := r.db.Conn(ctx)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, r.tables.Contracts, whereSQL)
	if err := conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count contracts: %w", err)
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(`
		SELECT %s FROM %s %s
		ORDER BY signed_on DESC, id
		LIMIT $%d OFFSET $%d`,
		contractColumns, r.tables.Contracts, whereSQL, len(args)-1, len(args))

	rows, err := conn.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	page := &models.ContractPage{Contracts: []*models.Contract{}, Total: total}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		page.Contracts = append(page.Contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contracts: %w", err)
	}
	return page, nil
}

func (r *contractRepository) Stats(ctx context.Context) (*models.ContractStats, error) {
	stats := &models.ContractStats{ByCategory: []models.CategoryTotal{}}
	var err error

	if stats.Contracts, err = r.CountContracts(ctx); err != nil {
		return nil, err
	}
	if stats.Suppliers, err = r.CountSuppliers(ctx); err != nil {
		return nil, err
	}
	if stats.Amendments, err = r.CountAmendments(ctx); err != nil {
		return nil, err
	}
	if stats.Inquiries, err = r.CountInquiries(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT category, COUNT(*), COALESCE(SUM(amount), 0)
		FROM %s
		GROUP BY category
		ORDER BY SUM(amount) DESC NULLS LAST, category`, r.tables.Contracts)

	rows, err := r.db.Conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate contracts: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var ct models.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Count, &ct.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		total = total.Add(ct.Amount)
		stats.ByCategory = append(stats.ByCategory, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category totals: %w", err)
	}
	stats.TotalAmount = total
	return stats, nil
}

func scanContract(row pgx.Row) (*models.Contract, error) {
	var (
		c          models.Contract
		externalID *string
	)
	err := row.Scan(
		&c.ID,
		&externalID,
		&c.NaturalKey,
		&c.Title,
		&c.Amount,
		&c.Category,
		&c.Date,
		&c.SupplierID,
		&c.SupplierName,
		&c.SupplierTaxID,
		&c.Authority,
		&c.ProcurementType,
		&c.Latitude,
		&c.Longitude,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if externalID != nil {
		c.ExternalID = *externalID
	}
	return &c, nil
}

func scanSupplier(row pgx.Row) (*models.Supplier, error) {
	var (
		s            models.Supplier
		taxID        *string
		conflictName *string
	)
	err := row.Scan(
		&s.ID,
		&s.Name,
		&taxID,
		&s.FoundedOn,
		&s.EmployeeCount,
		&s.NeedsReview,
		&conflictName,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if taxID != nil {
		s.TaxID = *taxID
	}
	if conflictName != nil {
		s.ConflictName = *conflictName
	}
	return &s, nil
}

// mapWriteError translates PostgreSQL constraint violations: a unique
// violation is a dedup collision (apperrors.ErrConflict), a foreign-key
// violation is a StoreError.
func mapWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("failed to %s: %w: %s", op, apperrors.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return apperrors.Wrap(err, apperrors.KindStore, op)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
