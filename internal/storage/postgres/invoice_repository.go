package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

var invoiceColumns = []string{
	"id", "order_id", "invoice_number", "type", "status", "total",
	"version", "created_at", "updated_at", "expires_at",
}

type invoiceRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// NewInvoiceRepository создаёт PostgreSQL-реализацию InvoiceRepository.
func NewInvoiceRepository(store *Store) domain.InvoiceRepository {
	return &invoiceRepository{db: store.DB(), builder: store.builder}
}

// Create пишет заголовок и позиции в одной транзакции.
// Уникальность активной накладной по заказу гарантирует частичный индекс uq_invoices_active_order.
func (r *invoiceRepository) Create(invoice domain.Invoice) (created domain.Invoice, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := r.builder.Insert("invoices").
		Columns("order_id", "invoice_number", "type", "status", "total",
			"version", "created_at", "updated_at", "expires_at").
		Values(invoice.OrderID, invoice.InvoiceNumber, string(invoice.Type), string(invoice.Status),
			invoice.Total, 0, invoice.CreatedAt, invoice.UpdatedAt, invoice.ExpiresAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("build insert invoice: %w", err)
	}

	if err = tx.QueryRowContext(ctx, query, args...).Scan(&invoice.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Invoice{}, domain.ErrOrderAlreadyConfirmed
		}
		return domain.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}

	if len(invoice.LineItems) > 0 {
		insert := r.builder.Insert("invoice_line_items").
			Columns("invoice_id", "position", "price_item_id", "product_id", "name", "unit_price", "quantity")
		for pos, item := range invoice.LineItems {
			insert = insert.Values(invoice.ID, pos, item.PriceItemID, item.ProductID, item.Name, item.UnitPrice, item.Quantity)
		}
		query, args, err = insert.ToSql()
		if err != nil {
			return domain.Invoice{}, fmt.Errorf("build insert line items: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return domain.Invoice{}, fmt.Errorf("insert invoice line items: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Invoice{}, fmt.Errorf("commit create invoice: %w", err)
	}

	invoice.Version = 0
	return invoice, nil
}

func (r *invoiceRepository) Get(id int64) (domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *invoiceRepository) FindActiveByOrder(orderID int64) (domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getOne(ctx, sq.Eq{
		"order_id": orderID,
		"status":   []string{string(domain.InvoiceStatusCreated), string(domain.InvoiceStatusPaid)},
	})
}

func (r *invoiceRepository) ListByOrder(orderID int64) ([]domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.list(ctx, r.builder.Select(invoiceColumns...).
		From("invoices").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("created_at DESC", "id DESC"))
}

func (r *invoiceRepository) ListExpired(cutoff time.Time, limit int) ([]domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := r.builder.Select(invoiceColumns...).
		From("invoices").
		Where(sq.Eq{"status": string(domain.InvoiceStatusCreated)}).
		Where(sq.Lt{"expires_at": cutoff}).
		OrderBy("expires_at ASC", "id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return r.list(ctx, query)
}

// Save обновляет статус и сроки; позиции после создания не меняются.
func (r *invoiceRepository) Save(invoice domain.Invoice) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := r.builder.Update("invoices").
		Set("status", string(invoice.Status)).
		Set("updated_at", invoice.UpdatedAt).
		Set("expires_at", invoice.ExpiresAt).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": invoice.ID, "version": invoice.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update invoice: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyConfirmed
		}
		return fmt.Errorf("update invoice: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.invoiceExistsTx(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrInvoiceNotFound
		}
		return domain.ErrInvoiceVersionConflict
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save invoice: %w", err)
	}

	return nil
}

func (r *invoiceRepository) getOne(ctx context.Context, where sq.Eq) (domain.Invoice, error) {
	invoices, err := r.list(ctx, r.builder.Select(invoiceColumns...).
		From("invoices").
		Where(where).
		Limit(1))
	if err != nil {
		return domain.Invoice{}, err
	}
	if len(invoices) == 0 {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return invoices[0], nil
}

// list выбирает заголовки и догружает позиции одним запросом.
func (r *invoiceRepository) list(ctx context.Context, query sq.SelectBuilder) ([]domain.Invoice, error) {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select invoices: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var (
			invoice     domain.Invoice
			typ, status string
		)
		if err := rows.Scan(
			&invoice.ID, &invoice.OrderID, &invoice.InvoiceNumber, &typ, &status, &invoice.Total,
			&invoice.Version, &invoice.CreatedAt, &invoice.UpdatedAt, &invoice.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		invoice.Type = domain.InvoiceType(typ)
		invoice.Status = domain.InvoiceStatus(status)
		index[invoice.ID] = len(invoices)
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice rows: %w", err)
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	ids := make([]int64, 0, len(invoices))
	for _, invoice := range invoices {
		ids = append(ids, invoice.ID)
	}
	if err := r.loadLineItems(ctx, ids, func(invoiceID int64, item domain.LineItem) {
		pos := index[invoiceID]
		invoices[pos].LineItems = append(invoices[pos].LineItems, item)
	}); err != nil {
		return nil, err
	}

	return invoices, nil
}

func (r *invoiceRepository) loadLineItems(ctx context.Context, invoiceIDs []int64, add func(int64, domain.LineItem)) error {
	query, args, err := r.builder.
		Select("invoice_id", "price_item_id", "product_id", "name", "unit_price", "quantity").
		From("invoice_line_items").
		Where(sq.Eq{"invoice_id": invoiceIDs}).
		OrderBy("invoice_id ASC", "position ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select line items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("load invoice line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			invoiceID int64
			item      domain.LineItem
		)
		if err := rows.Scan(&invoiceID, &item.PriceItemID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return fmt.Errorf("scan invoice line item: %w", err)
		}
		add(invoiceID, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate invoice line items: %w", err)
	}

	return nil
}

func (r *invoiceRepository) invoiceExistsTx(ctx context.Context, tx *sql.Tx, invoiceID int64) (bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM invoices WHERE id = $1`, invoiceID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check invoice exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.InvoiceRepository = (*invoiceRepository)(nil)
