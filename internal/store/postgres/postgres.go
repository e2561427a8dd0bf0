package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"possync/backend/internal/domain"
	"possync/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// offlineIDConstraint is the only uniqueness violation reported as a duplicate sale.
const offlineIDConstraint = "sales_tenant_offline_id_key"

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) GetStore(ctx context.Context, tenantID string, storeID string) (*domain.Store, error) {
	var st domain.Store
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, created_at
		FROM stores
		WHERE id = $1 AND tenant_id = $2
	`, storeID, tenantID).Scan(&st.ID, &st.TenantID, &st.Name, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) FirstStore(ctx context.Context, tenantID string) (*domain.Store, error) {
	var st domain.Store
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, created_at
		FROM stores
		WHERE tenant_id = $1
		ORDER BY created_at, id
		LIMIT 1
	`, tenantID).Scan(&st.ID, &st.TenantID, &st.Name, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) ListStores(ctx context.Context, tenantID string) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, created_at
		FROM stores
		WHERE tenant_id = $1
		ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 4)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.TenantID, &st.Name, &st.CreatedAt); err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

const productColumns = `id, tenant_id, sku, name, price, cost_price, stock, min_stock, active`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.Price, &p.CostPrice, &p.Stock, &p.MinStock, &p.Active)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND active = true
		ORDER BY name, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND active = true AND id = ANY($2)
	`, tenantID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

const saleColumns = `id, tenant_id, store_id, COALESCE(terminal_id, ''), offline_id, occurred_at,
	total_amount, payment_method, status, COALESCE(created_by, ''), synced_at`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(
		&sale.ID, &sale.TenantID, &sale.StoreID, &sale.TerminalID, &sale.OfflineID, &sale.OccurredAt,
		&sale.TotalAmount, &sale.PaymentMethod, &sale.Status, &sale.CreatedBy, &sale.SyncedAt,
	)
	return sale, err
}

func (s *Store) FindSaleByOfflineID(ctx context.Context, tenantID string, offlineID string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE tenant_id = $1 AND offline_id = $2
	`, tenantID, offlineID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadItems(ctx, []*domain.Sale{&sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) FindSaleByID(ctx context.Context, tenantID string, saleID string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadItems(ctx, []*domain.Sale{&sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListCompletedSales(ctx context.Context, tenantID string, storeID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE tenant_id = $1 AND store_id = $2 AND status = $3
			AND occurred_at >= $4 AND occurred_at < $5
		ORDER BY occurred_at, id
	`, tenantID, storeID, domain.SaleStatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	ptrs := make([]*domain.Sale, len(sales))
	for i := range sales {
		ptrs[i] = &sales[i]
	}
	if err := s.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) loadItems(ctx context.Context, sales []*domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Sale, len(sales))
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		sale.Items = make([]domain.SaleLineItem, 0, 4)
		byID[sale.ID] = sale
		ids = append(ids, sale.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, quantity, unit_price, unit_cost
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleLineItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.UnitCost); err != nil {
			return err
		}
		if sale, ok := byID[saleID]; ok {
			sale.Items = append(sale.Items, item)
		}
	}
	return rows.Err()
}

func (s *Store) ListStoreStock(ctx context.Context, tenantID string, storeID string) ([]domain.StockLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.stock, COALESCE(ss.quantity, p.stock), p.min_stock
		FROM products p
		LEFT JOIN store_stocks ss ON ss.product_id = p.id AND ss.store_id = $2
		WHERE p.tenant_id = $1 AND p.active = true
		ORDER BY p.id
	`, tenantID, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]domain.StockLevel, 0, 128)
	for rows.Next() {
		level := domain.StockLevel{TenantID: tenantID, StoreID: storeID}
		if err := rows.Scan(&level.ProductID, &level.ProductStock, &level.StoreStock, &level.MinStock); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

func (s *Store) ListMovements(ctx context.Context, filter store.MovementFilter) ([]domain.InventoryMovement, error) {
	clauses := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	if filter.StoreID != "" {
		args = append(args, filter.StoreID)
		clauses = append(clauses, fmt.Sprintf("store_id = $%d", len(args)))
	}
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, store_id, product_id, type, quantity, requested, reason,
			COALESCE(reference_id, ''), COALESCE(actor, ''), created_at
		FROM inventory_movements
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY created_at DESC, id DESC
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, limit)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.StoreID, &m.ProductID, &m.Type, &m.Quantity, &m.Requested,
			&m.Reason, &m.ReferenceID, &m.Actor, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *Store) ReplaceDaySummaries(ctx context.Context, daily domain.DailySalesSummary, products []domain.ProductSalesSummary) error {
	if daily.TenantID == "" || daily.StoreID == "" || daily.Date.IsZero() {
		return store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO daily_sales_summaries
			(tenant_id, store_id, date, gross_sales, transaction_count, cost_of_goods_sold, gross_profit, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (store_id, date) DO UPDATE SET
			gross_sales = EXCLUDED.gross_sales,
			transaction_count = EXCLUDED.transaction_count,
			cost_of_goods_sold = EXCLUDED.cost_of_goods_sold,
			gross_profit = EXCLUDED.gross_profit,
			computed_at = EXCLUDED.computed_at
	`, daily.TenantID, daily.StoreID, daily.Date, daily.GrossSales, daily.TransactionCount,
		daily.CostOfGoodsSold, daily.GrossProfit, daily.ComputedAt); err != nil {
		return err
	}

	if _, err := pgTx.ExecContext(ctx, `
		DELETE FROM product_sales_summaries
		WHERE tenant_id = $1 AND store_id = $2 AND date = $3
	`, daily.TenantID, daily.StoreID, daily.Date); err != nil {
		return err
	}

	for _, row := range products {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO product_sales_summaries
				(tenant_id, store_id, product_id, date, units_sold, total_revenue, total_cost, computed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, daily.TenantID, daily.StoreID, row.ProductID, daily.Date, row.UnitsSold,
			row.TotalRevenue, row.TotalCost, row.ComputedAt); err != nil {
			return err
		}
	}

	return pgTx.Commit()
}

func (s *Store) ListDailySummaries(ctx context.Context, tenantID string, storeID string, from time.Time, to time.Time) ([]domain.DailySalesSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, store_id, date, gross_sales, transaction_count, cost_of_goods_sold, gross_profit, computed_at
		FROM daily_sales_summaries
		WHERE tenant_id = $1 AND store_id = $2 AND date BETWEEN $3 AND $4
		ORDER BY date
	`, tenantID, storeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DailySalesSummary, 0, 31)
	for rows.Next() {
		var d domain.DailySalesSummary
		if err := rows.Scan(&d.TenantID, &d.StoreID, &d.Date, &d.GrossSales, &d.TransactionCount,
			&d.CostOfGoodsSold, &d.GrossProfit, &d.ComputedAt); err != nil {
			return nil, err
		}
		d.Date = dateLabel(d.Date)
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) ListProductSummaries(ctx context.Context, filter store.ProductSummaryFilter) ([]domain.ProductSalesSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, store_id, product_id, date, units_sold, total_revenue, total_cost, computed_at
		FROM product_sales_summaries
		WHERE tenant_id = $1
		  AND ($2 = '' OR store_id = $2)
		  AND ($3 = '' OR product_id = $3)
		  AND date BETWEEN $4 AND $5
		ORDER BY date, store_id, product_id
	`, filter.TenantID, filter.StoreID, filter.ProductID, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductSalesSummary, 0, 32)
	for rows.Next() {
		var p domain.ProductSalesSummary
		if err := rows.Scan(&p.TenantID, &p.StoreID, &p.ProductID, &p.Date, &p.UnitsSold,
			&p.TotalRevenue, &p.TotalCost, &p.ComputedAt); err != nil {
			return nil, err
		}
		p.Date = dateLabel(p.Date)
		result = append(result, p)
	}
	return result, rows.Err()
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken by Tx.LockStock
// serialize concurrent writers of the same stock rows, and the unique constraint on
// (tenant_id, offline_id) serializes duplicate sales.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(&saleTx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(); err != nil {
		if isOfflineIDViolation(err) {
			return store.ErrDuplicateOfflineID
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var storeID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, tenant_id, store_id, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.Username, &user.Password, &user.Role, &user.TenantID, &storeID, &user.Active, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.StoreID = storeID.String
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" || user.TenantID == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, tenant_id, store_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,true,$6,now())
	`, user.Username, user.Password, user.Role, user.TenantID, nullIfEmpty(user.StoreID), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

type saleTx struct {
	tx *sql.Tx
}

// LockStock locks the product row first and the store row second. Every writer takes
// the locks in that order.
func (t *saleTx) LockStock(ctx context.Context, tenantID string, storeID string, productID string) (domain.StockLevel, error) {
	level := domain.StockLevel{TenantID: tenantID, StoreID: storeID, ProductID: productID}

	err := t.tx.QueryRowContext(ctx, `
		SELECT stock, min_stock
		FROM products
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, productID, tenantID).Scan(&level.ProductStock, &level.MinStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockLevel{}, store.ErrNotFound
		}
		return domain.StockLevel{}, err
	}

	var owned bool
	if err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1 AND tenant_id = $2)
	`, storeID, tenantID).Scan(&owned); err != nil {
		return domain.StockLevel{}, err
	}
	if !owned {
		return domain.StockLevel{}, store.ErrNotFound
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO store_stocks (tenant_id, store_id, product_id, quantity, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (store_id, product_id) DO NOTHING
	`, tenantID, storeID, productID, level.ProductStock); err != nil {
		return domain.StockLevel{}, err
	}

	if err := t.tx.QueryRowContext(ctx, `
		SELECT quantity
		FROM store_stocks
		WHERE store_id = $1 AND product_id = $2
		FOR UPDATE
	`, storeID, productID).Scan(&level.StoreStock); err != nil {
		return domain.StockLevel{}, err
	}
	return level, nil
}

func (t *saleTx) SaveStock(ctx context.Context, level domain.StockLevel) error {
	if level.ProductStock < 0 || level.StoreStock < 0 {
		return store.ErrInvalidInput
	}
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3
	`, level.ProductStock, level.ProductID, level.TenantID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE store_stocks SET quantity = $1, updated_at = now()
		WHERE store_id = $2 AND product_id = $3
	`, level.StoreStock, level.StoreID, level.ProductID)
	return err
}

func (t *saleTx) AppendMovement(ctx context.Context, m domain.InventoryMovement) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_movements
			(id, tenant_id, store_id, product_id, type, quantity, requested, reason, reference_id, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, m.ID, m.TenantID, m.StoreID, m.ProductID, m.Type, m.Quantity, m.Requested, m.Reason,
		nullIfEmpty(m.ReferenceID), nullIfEmpty(m.Actor), m.CreatedAt)
	return err
}

func (t *saleTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.TenantID == "" || sale.OfflineID == "" {
		return store.ErrInvalidInput
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales
			(id, tenant_id, store_id, terminal_id, offline_id, occurred_at, total_amount, payment_method, status, created_by, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.TenantID, sale.StoreID, nullIfEmpty(sale.TerminalID), sale.OfflineID, sale.OccurredAt,
		sale.TotalAmount, sale.PaymentMethod, sale.Status, nullIfEmpty(sale.CreatedBy), sale.SyncedAt)
	if err != nil {
		if isOfflineIDViolation(err) {
			return store.ErrDuplicateOfflineID
		}
		return err
	}

	for i, item := range sale.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, quantity, unit_price, unit_cost)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, i+1, item.ProductID, item.Quantity, item.UnitPrice, item.UnitCost); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isOfflineIDViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == offlineIDConstraint
	}
	return false
}

func dateLabel(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
