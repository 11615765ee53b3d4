package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

type priceItemRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// NewPriceItemRepository создаёт PostgreSQL-реализацию PriceItemRepository.
func NewPriceItemRepository(store *Store) domain.PriceItemRepository {
	return &priceItemRepository{db: store.DB(), builder: store.builder}
}

func (r *priceItemRepository) Create(item domain.PriceItem) (domain.PriceItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query, args, err := r.builder.Insert("price_items").
		Columns("product_id", "price", "markup", "created_at", "updated_at").
		Values(item.ProductID, item.Price, item.Markup, item.CreatedAt, item.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.PriceItem{}, fmt.Errorf("build insert price item: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&item.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.PriceItem{}, domain.ErrPriceItemExists
		}
		return domain.PriceItem{}, fmt.Errorf("insert price item: %w", err)
	}
	return item, nil
}

func (r *priceItemRepository) Get(id int64) (domain.PriceItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	items, err := r.selectItems(ctx, sq.Eq{"id": id})
	if err != nil {
		return domain.PriceItem{}, err
	}
	if len(items) == 0 {
		return domain.PriceItem{}, domain.ErrPriceItemNotFound
	}
	return items[0], nil
}

func (r *priceItemRepository) Update(item domain.PriceItem) (domain.PriceItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query, args, err := r.builder.Update("price_items").
		Set("price", item.Price).
		Set("markup", item.Markup).
		Set("updated_at", item.UpdatedAt).
		Where(sq.Eq{"id": item.ID}).
		Suffix("RETURNING product_id, created_at").
		ToSql()
	if err != nil {
		return domain.PriceItem{}, fmt.Errorf("build update price item: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&item.ProductID, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PriceItem{}, domain.ErrPriceItemNotFound
		}
		return domain.PriceItem{}, fmt.Errorf("update price item: %w", err)
	}
	return item, nil
}

func (r *priceItemRepository) ListByProductIDs(productIDs []int64) ([]domain.PriceItem, error) {
	if len(productIDs) == 0 {
		return []domain.PriceItem{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.selectItems(ctx, sq.Eq{"product_id": productIDs})
}

func (r *priceItemRepository) selectItems(ctx context.Context, where sq.Eq) ([]domain.PriceItem, error) {
	query, args, err := r.builder.
		Select("id", "product_id", "price", "markup", "created_at", "updated_at").
		From("price_items").
		Where(where).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select price items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select price items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.PriceItem, 0)
	for rows.Next() {
		var item domain.PriceItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Price, &item.Markup, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan price item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price items: %w", err)
	}

	return items, nil
}

var _ domain.PriceItemRepository = (*priceItemRepository)(nil)
