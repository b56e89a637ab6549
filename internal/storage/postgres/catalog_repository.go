package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type catalogRepository struct {
	q queryer
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return catalogRepository{q: store.DB()}
}

func (r catalogRepository) CreateStore(ctx context.Context, store domain.Store) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO stores (id, owner_id, name, description, logo_url, contact_info, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		store.ID, store.OwnerID, store.Name, store.Description,
		store.LogoURL, store.ContactInfo, store.Address, store.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Validation("store %s already exists", store.ID)
		}
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

const storeColumns = `id, owner_id, name, description, logo_url, contact_info, address, created_at`

func scanStore(row interface{ Scan(...any) error }) (domain.Store, error) {
	var s domain.Store
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Description, &s.LogoURL, &s.ContactInfo, &s.Address, &s.CreatedAt)
	return s, err
}

func (r catalogRepository) GetStore(ctx context.Context, id string) (domain.Store, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	store, err := scanStore(r.q.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Store{}, domain.ErrStoreNotFound
		}
		return domain.Store{}, fmt.Errorf("select store: %w", err)
	}
	return store, nil
}

// ListStores фильтрует по точному имени и подстроке в имени или описании.
func (r catalogRepository) ListStores(ctx context.Context, filter domain.StoreFilter) ([]domain.Store, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.Name != "" {
		args = append(args, filter.Name)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", len(args)))
	}
	query := `SELECT ` + storeColumns + ` FROM stores`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	stores := make([]domain.Store, 0)
	for rows.Next() {
		store, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, store)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return stores, nil
}

func (r catalogRepository) ListStoreIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT id FROM stores WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner stores: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan store id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store ids: %w", err)
	}
	return ids, nil
}

func (r catalogRepository) CreateCategory(ctx context.Context, category domain.Category) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	images, err := encodeImages(category.ImageURLs)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, parent_id, external_id, is_active, image_urls, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		category.ID, category.Name, category.Slug, nullable(category.ParentID),
		nullable(category.ExternalID), category.IsActive, images, category.CreatedAt,
	)
	if err == nil {
		return nil
	}
	if name, ok := violatedConstraint(err, pgUniqueViolation); ok {
		if name == "categories_external_id_key" {
			return domain.Validation("category with external_id %s already exists", category.ExternalID)
		}
		return domain.ErrSlugTaken
	}
	if _, ok := violatedConstraint(err, pgForeignKeyViolation); ok {
		return domain.ErrCategoryNotFound
	}
	return fmt.Errorf("insert category: %w", err)
}

const categoryColumns = `id, name, slug, COALESCE(parent_id, ''), COALESCE(external_id, ''), is_active, image_urls, created_at`

func scanCategory(row interface{ Scan(...any) error }) (domain.Category, error) {
	var (
		c      domain.Category
		images []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.ExternalID, &c.IsActive, &images, &c.CreatedAt); err != nil {
		return domain.Category{}, err
	}
	urls, err := decodeImages(images)
	if err != nil {
		return domain.Category{}, err
	}
	c.ImageURLs = urls
	return c, nil
}

func (r catalogRepository) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	category, err := scanCategory(r.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}
	return category, nil
}

func (r catalogRepository) ListCategories(ctx context.Context, parentID string, onlyActive bool) ([]domain.Category, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE parent_id IS NOT DISTINCT FROM $1
		  AND (NOT $2 OR is_active)
		ORDER BY name ASC
	`, nullable(parentID), onlyActive)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (r catalogRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	images, err := encodeImages(p.ImageURLs)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO products (
			id, store_id, category_id, subcategory_id, sub_subcategory_id, name, description,
			specification, is_dropshipping, external_id, external_url, base_price,
			markup_percentage, unit_price, inventory, is_active, image_urls, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		p.ID, p.StoreID, nullable(p.CategoryID), nullable(p.SubcategoryID), nullable(p.SubSubcategoryID),
		p.Name, p.Description, p.Specification, p.IsDropshipping, p.ExternalID, p.ExternalURL,
		nullDecimal(p.BasePrice), p.MarkupPercentage, p.UnitPrice, nullInt32(p.Inventory),
		p.IsActive, images, p.CreatedAt,
	)
	if err != nil {
		return productWriteError(err, "insert product")
	}
	return nil
}

// UpdateProduct перезаписывает изменяемые поля; магазин и дата создания не меняются.
func (r catalogRepository) UpdateProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	images, err := encodeImages(p.ImageURLs)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET category_id = $2,
		    subcategory_id = $3,
		    sub_subcategory_id = $4,
		    name = $5,
		    description = $6,
		    specification = $7,
		    is_dropshipping = $8,
		    external_id = $9,
		    external_url = $10,
		    base_price = $11,
		    markup_percentage = $12,
		    unit_price = $13,
		    inventory = $14,
		    is_active = $15,
		    image_urls = $16
		WHERE id = $1
	`,
		p.ID, nullable(p.CategoryID), nullable(p.SubcategoryID), nullable(p.SubSubcategoryID),
		p.Name, p.Description, p.Specification, p.IsDropshipping, p.ExternalID, p.ExternalURL,
		nullDecimal(p.BasePrice), p.MarkupPercentage, p.UnitPrice, nullInt32(p.Inventory),
		p.IsActive, images,
	)
	if err != nil {
		return productWriteError(err, "update product")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func productWriteError(err error, op string) error {
	if name, ok := violatedConstraint(err, pgForeignKeyViolation); ok {
		if name == "products_store_id_fkey" {
			return domain.ErrStoreNotFound
		}
		return domain.ErrCategoryNotFound
	}
	if isCheckViolation(err) {
		return domain.ErrItemPriceInvalid
	}
	return fmt.Errorf("%s: %w", op, err)
}

const productColumns = `p.id, p.store_id, COALESCE(p.category_id, ''), COALESCE(p.subcategory_id, ''),
	COALESCE(p.sub_subcategory_id, ''), p.name, p.description, p.specification, p.is_dropshipping,
	p.external_id, p.external_url, p.base_price, p.markup_percentage, p.unit_price, p.inventory,
	p.is_active, p.image_urls, p.created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var (
		p         domain.Product
		basePrice decimal.NullDecimal
		inventory sql.NullInt32
		images    []byte
	)
	if err := row.Scan(
		&p.ID, &p.StoreID, &p.CategoryID, &p.SubcategoryID, &p.SubSubcategoryID,
		&p.Name, &p.Description, &p.Specification, &p.IsDropshipping,
		&p.ExternalID, &p.ExternalURL, &basePrice, &p.MarkupPercentage, &p.UnitPrice, &inventory,
		&p.IsActive, &images, &p.CreatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	if basePrice.Valid {
		p.BasePrice = &basePrice.Decimal
	}
	if inventory.Valid {
		p.Inventory = &inventory.Int32
	}
	urls, err := decodeImages(images)
	if err != nil {
		return domain.Product{}, err
	}
	p.ImageURLs = urls
	return p, nil
}

func (r catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r catalogRepository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

var productOrderings = map[domain.ProductOrdering]string{
	domain.OrderByCreatedDesc: "p.created_at DESC, p.id DESC",
	domain.OrderByCreatedAsc:  "p.created_at ASC, p.id ASC",
	domain.OrderByPriceAsc:    "p.unit_price ASC, p.created_at DESC, p.id DESC",
	domain.OrderByPriceDesc:   "p.unit_price DESC, p.created_at DESC, p.id DESC",
}

// ListProducts фильтрует по slug категорий, диапазону цены и подстроке в имени
// товара или его категорий.
func (r catalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.IncludeInactive {
		where = append(where, "p.is_active")
	}
	if filter.StoreID != "" {
		where = append(where, "p.store_id = "+arg(filter.StoreID))
	}
	if filter.CategorySlug != "" {
		where = append(where, "c1.slug = "+arg(filter.CategorySlug))
	}
	if filter.SubcategorySlug != "" {
		where = append(where, "c2.slug = "+arg(filter.SubcategorySlug))
	}
	if filter.SubSubcategorySlug != "" {
		where = append(where, "c3.slug = "+arg(filter.SubSubcategorySlug))
	}
	if filter.PriceGT != nil {
		where = append(where, "p.unit_price > "+arg(*filter.PriceGT))
	}
	if filter.PriceLT != nil {
		where = append(where, "p.unit_price < "+arg(*filter.PriceLT))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		n := arg("%" + search + "%")
		where = append(where, fmt.Sprintf("(p.name ILIKE %[1]s OR c1.name ILIKE %[1]s OR c2.name ILIKE %[1]s OR c3.name ILIKE %[1]s)", n))
	}

	orderBy, ok := productOrderings[filter.Ordering]
	if !ok {
		orderBy = productOrderings[domain.OrderByCreatedDesc]
	}

	query := `
		SELECT ` + productColumns + `
		FROM products p
		LEFT JOIN categories c1 ON c1.id = p.category_id
		LEFT JOIN categories c2 ON c2.id = p.subcategory_id
		LEFT JOIN categories c3 ON c3.id = p.sub_subcategory_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY " + orderBy
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func encodeImages(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	raw, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("encode image urls: %w", err)
	}
	return string(raw), nil
}

func decodeImages(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return nil, fmt.Errorf("decode image urls: %w", err)
	}
	return urls, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullInt32(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}

var _ domain.CatalogRepository = catalogRepository{}
