package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

type purchasedCostsRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// NewPurchasedCostsRepository создаёт PostgreSQL-реализацию журнала закупок.
func NewPurchasedCostsRepository(store *Store) domain.PurchasedCostsRepository {
	return &purchasedCostsRepository{db: store.DB(), builder: store.builder}
}

func (r *purchasedCostsRepository) Append(entry domain.PurchasedCosts) (domain.PurchasedCosts, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query, args, err := r.builder.Insert("purchased_costs").
		Columns("price_item_id", "quantity", "date_of_purchase").
		Values(entry.PriceItemID, entry.Quantity, entry.DateOfPurchase).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.PurchasedCosts{}, fmt.Errorf("build insert purchased costs: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&entry.ID); err != nil {
		return domain.PurchasedCosts{}, fmt.Errorf("insert purchased costs: %w", err)
	}
	return entry, nil
}

func (r *purchasedCostsRepository) ListBetween(from, to time.Time) ([]domain.PurchasedCosts, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query, args, err := r.builder.
		Select("id", "price_item_id", "quantity", "date_of_purchase").
		From("purchased_costs").
		Where(sq.GtOrEq{"date_of_purchase": from}).
		Where(sq.LtOrEq{"date_of_purchase": to}).
		OrderBy("date_of_purchase ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select purchased costs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select purchased costs: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.PurchasedCosts, 0)
	for rows.Next() {
		var entry domain.PurchasedCosts
		if err := rows.Scan(&entry.ID, &entry.PriceItemID, &entry.Quantity, &entry.DateOfPurchase); err != nil {
			return nil, fmt.Errorf("scan purchased costs: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchased costs: %w", err)
	}

	return entries, nil
}

var _ domain.PurchasedCostsRepository = (*purchasedCostsRepository)(nil)
