package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tentshop/storefront/pkg/database"
	apperrors "github.com/tentshop/storefront/pkg/errors"
	"github.com/tentshop/storefront/pkg/slug"

	"github.com/tentshop/storefront/internal/domain"
)

const productColumns = `id, slug, name, price_cents, currency, stock, active`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ResolveProduct looks ref up as an id when it parses as a UUID, otherwise
// as a slug after normalization.
func (r *ProductRepository) ResolveProduct(ctx context.Context, ref string) (p *domain.Product, err error) {
	column, key := "slug", slug.Normalize(ref)
	if id, perr := uuid.Parse(ref); perr == nil {
		column, key = "id", id.String()
	}
	if key == "" {
		return nil, apperrors.ErrNotFound
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` + column + ` = $1`

	ctx, end := database.TraceQuery(ctx, "ResolveProduct", query)
	defer func() { end(err) }()

	var product domain.Product
	err = r.pool.QueryRow(ctx, query, key).Scan(
		&product.ID,
		&product.Slug,
		&product.Name,
		&product.PriceCents,
		&product.Currency,
		&product.Stock,
		&product.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("resolve product by %s: %w", column, err)
	}

	return &product, nil
}
