package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/oakmall/storefront/internal/domain/catalog"
	"github.com/lib/pq"
)

// CatalogStore implements catalog.Store on Postgres. The oversell guard is the
// database itself: decrements are conditional UPDATEs inside one transaction,
// so concurrent settlements on the same product serialize at the row and the
// loser sees zero affected rows instead of negative stock.
type CatalogStore struct {
	db *sql.DB
}

func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	query := `SELECT id, name, price_cents, quantity_on_hand, updated_at
	          FROM products WHERE id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.QuantityOnHand, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		found[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return found, nil
}

func (s *CatalogStore) Save(ctx context.Context, product *domain.Product) error {
	query := `INSERT INTO products (id, name, price_cents, quantity_on_hand, updated_at)
	          VALUES ($1, $2, $3, $4, NOW())
	          ON CONFLICT (id) DO UPDATE
	          SET name = EXCLUDED.name,
	              price_cents = EXCLUDED.price_cents,
	              quantity_on_hand = EXCLUDED.quantity_on_hand,
	              updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query,
		product.ID, product.Name, product.PriceCents, product.QuantityOnHand); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// DecrementStock runs every line as `quantity_on_hand = quantity_on_hand - N
// WHERE quantity_on_hand >= N` in a single transaction. A line that affects
// zero rows means insufficient stock (or an unknown product); the transaction
// rolls back and nothing is decremented.
func (s *CatalogStore) DecrementStock(ctx context.Context, decrements []domain.Decrement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decrement tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const decrementQuery = `UPDATE products
	        SET quantity_on_hand = quantity_on_hand - $2, updated_at = NOW()
	        WHERE id = $1 AND quantity_on_hand >= $2`

	for _, dec := range decrements {
		res, execErr := tx.ExecContext(ctx, decrementQuery, dec.ProductID, dec.Quantity)
		if execErr != nil {
			return fmt.Errorf("decrement product %s: %w", dec.ProductID, execErr)
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("decrement product %s: rows affected: %w", dec.ProductID, raErr)
		}
		if affected == 0 {
			return s.decrementFailure(ctx, tx, dec)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decrement tx: %w", err)
	}
	return nil
}

// decrementFailure distinguishes a missing product from insufficient stock so
// the caller gets the same error shapes as the in-memory store.
func (s *CatalogStore) decrementFailure(ctx context.Context, tx *sql.Tx, dec domain.Decrement) error {
	var available int
	err := tx.QueryRowContext(ctx,
		`SELECT quantity_on_hand FROM products WHERE id = $1`, dec.ProductID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{ProductID: dec.ProductID}
	}
	if err != nil {
		return fmt.Errorf("inspect product %s: %w", dec.ProductID, err)
	}
	return &domain.InsufficientStockError{
		ProductID: dec.ProductID,
		Available: available,
		Requested: dec.Quantity,
	}
}
