package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stockroom/backend/internal/domain/catalog"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/config"
	"github.com/stockroom/backend/internal/infrastructure/logger"
	"github.com/stockroom/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Partition is the tenant storage a ledger operation runs against.
// *tenant.Handle satisfies it.
type Partition interface {
	Tenant() string
	Products() catalog.ProductRepository
	Categories() catalog.CategoryRepository
}

// LedgerService handles product ledgers inside one tenant partition at a time.
// Mutations of the same product are serialized in process and guarded by the
// aggregate version in storage; mutations of different products never wait
// on each other.
type LedgerService struct {
	cfg     config.LedgerConfig
	metrics *telemetry.InventoryMetrics
	locks   *keyedLocker
}

// Option configures a LedgerService
type Option func(*LedgerService)

// WithMetrics records movements and version conflicts
func WithMetrics(m *telemetry.InventoryMetrics) Option {
	return func(s *LedgerService) {
		s.metrics = m
	}
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(cfg config.LedgerConfig, opts ...Option) *LedgerService {
	if cfg.MaxBarcodeAttempts <= 0 {
		cfg.MaxBarcodeAttempts = 1000
	}
	if cfg.MaxConflictRetries < 0 {
		cfg.MaxConflictRetries = 0
	}
	s := &LedgerService{
		cfg:   cfg,
		locks: newKeyedLocker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProduct creates a product under the requested barcode. A positive
// initial quantity is recorded as the first movement.
func (s *LedgerService) CreateProduct(ctx context.Context, p Partition, req CreateProductRequest) (_ *ProductResponse, err error) {
	ctx, span := s.begin(ctx, "ledger.create_product", p, req.Barcode)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.checkCategory(ctx, p, req.CategoryID); err != nil {
		return nil, err
	}

	product, err := catalog.NewProduct(req.Barcode, req.fields(), req.InitialQuantity, req.Actor)
	if err != nil {
		return nil, err
	}
	if err := p.Products().Create(ctx, product); err != nil {
		return nil, err
	}
	if product.MovementCount > 0 {
		s.metrics.RecordMovement(ctx, p.Tenant(), string(catalog.MovementAdd))
	}

	logger.L(ctx).Info("Product created",
		zap.String("barcode", product.Barcode),
		zap.Int64("initial_quantity", req.InitialQuantity),
	)
	resp := ToProductResponse(p.Tenant(), product)
	return &resp, nil
}

// AddStock appends an add movement and increments the counter atomically
func (s *LedgerService) AddStock(ctx context.Context, p Partition, barcode string, req StockRequest) (_ *StockChangeResponse, err error) {
	ctx, span := s.begin(ctx, "ledger.add_stock", p, barcode)
	defer func() { telemetry.EndSpan(span, err) }()

	return s.mutateStock(ctx, p, barcode, catalog.MovementAdd, func(product *catalog.Product) (*catalog.StockMovement, error) {
		return product.AddStock(req.Quantity, req.Note, req.Counterpart, req.Actor)
	})
}

// RemoveStock appends a remove movement and decrements the counter
// atomically. Removing more than is in stock fails with INSUFFICIENT_STOCK
// and changes nothing.
func (s *LedgerService) RemoveStock(ctx context.Context, p Partition, barcode string, req StockRequest) (_ *StockChangeResponse, err error) {
	ctx, span := s.begin(ctx, "ledger.remove_stock", p, barcode)
	defer func() { telemetry.EndSpan(span, err) }()

	return s.mutateStock(ctx, p, barcode, catalog.MovementRemove, func(product *catalog.Product) (*catalog.StockMovement, error) {
		return product.RemoveStock(req.Quantity, req.Note, req.Counterpart, req.Actor)
	})
}

// GenerateUniqueBarcode returns base if it is free in the partition, else the
// first free variant base(1), base(2), ... Nothing is reserved.
func (s *LedgerService) GenerateUniqueBarcode(ctx context.Context, p Partition, base string) (string, error) {
	if err := catalog.ValidateBarcode(base); err != nil {
		return "", err
	}
	candidate, _, err := s.firstFree(ctx, p.Products(), base, 0)
	return candidate, err
}

// DuplicateProduct copies a product's fields and stock under a new unique
// barcode derived from the source barcode
func (s *LedgerService) DuplicateProduct(ctx context.Context, p Partition, barcode, actor string) (_ *ProductResponse, err error) {
	ctx, span := s.begin(ctx, "ledger.duplicate_product", p, barcode)
	defer func() { telemetry.EndSpan(span, err) }()

	source, err := p.Products().FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	product, err := s.createUnderFreeBarcode(ctx, p, source.Barcode, func(candidate string) (*catalog.Product, error) {
		return source.CopyAs(candidate, true, catalog.DuplicatedFromNote(source.Barcode), actor)
	})
	if err != nil {
		return nil, err
	}
	if product.MovementCount > 0 {
		s.metrics.RecordMovement(ctx, p.Tenant(), string(catalog.MovementAdd))
	}

	logger.L(ctx).Info("Product duplicated",
		zap.String("barcode", source.Barcode),
		zap.String("copy_barcode", product.Barcode),
	)
	resp := ToProductResponse(p.Tenant(), product)
	return &resp, nil
}

// ImportCopy creates a copy of a product that lives in another partition.
// The category is dropped because category IDs are tenant local. The copy
// gets the first free variant of the source barcode.
func (s *LedgerService) ImportCopy(ctx context.Context, p Partition, source *catalog.Product, note, actor string) (*catalog.Product, error) {
	product, err := s.createUnderFreeBarcode(ctx, p, source.Barcode, func(candidate string) (*catalog.Product, error) {
		return source.CopyAs(candidate, false, note, actor)
	})
	if err != nil {
		return nil, err
	}
	if product.MovementCount > 0 {
		s.metrics.RecordMovement(ctx, p.Tenant(), string(catalog.MovementAdd))
	}
	return product, nil
}

// GetProduct loads a product, with its history when withHistory is set
func (s *LedgerService) GetProduct(ctx context.Context, p Partition, barcode string, withHistory bool) (*ProductResponse, error) {
	product, err := s.Load(ctx, p, barcode, withHistory)
	if err != nil {
		return nil, err
	}
	resp := ToProductResponse(p.Tenant(), product)
	return &resp, nil
}

// Load returns the domain product for barcode
func (s *LedgerService) Load(ctx context.Context, p Partition, barcode string, withHistory bool) (*catalog.Product, error) {
	product, err := p.Products().FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if withHistory {
		if product.History, err = p.Products().FindMovements(ctx, product.ID); err != nil {
			return nil, err
		}
	}
	return product, nil
}

// ListProducts returns one page of the partition's products
func (s *LedgerService) ListProducts(ctx context.Context, p Partition, filter ProductListFilter) (*shared.Paginated[ProductResponse], error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "desc"
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Search:   filter.Search,
		Filters:  make(map[string]any),
	}
	if filter.CategoryID != nil {
		domainFilter.Filters["category_id"] = *filter.CategoryID
	}
	if filter.InStock != nil {
		domainFilter.Filters["in_stock"] = *filter.InStock
	}

	products, err := p.Products().FindAll(ctx, domainFilter)
	if err != nil {
		return nil, err
	}
	total, err := p.Products().Count(ctx, domainFilter)
	if err != nil {
		return nil, err
	}

	items := make([]ProductResponse, len(products))
	for i := range products {
		items[i] = ToProductResponse(p.Tenant(), &products[i])
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// ListMovements returns a product's history in append order
func (s *LedgerService) ListMovements(ctx context.Context, p Partition, barcode string) ([]MovementResponse, error) {
	product, err := s.Load(ctx, p, barcode, true)
	if err != nil {
		return nil, err
	}
	return ToMovementResponses(product.History), nil
}

// UpdateProduct changes descriptive fields and, optionally, the barcode.
// A new barcode must be free in the partition.
func (s *LedgerService) UpdateProduct(ctx context.Context, p Partition, barcode string, req UpdateProductRequest) (_ *ProductResponse, err error) {
	ctx, span := s.begin(ctx, "ledger.update_product", p, barcode)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.checkCategory(ctx, p, req.CategoryID); err != nil {
		return nil, err
	}

	repo := p.Products()
	found, err := repo.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(s.lockKey(p, found.ID))
	defer unlock()

	product, err := retryOnConflict(ctx, s, p.Tenant(), func() (*catalog.Product, error) {
		product, err := repo.FindByID(ctx, found.ID)
		if err != nil {
			return nil, err
		}
		expected := product.Version

		if req.Barcode != nil && *req.Barcode != product.Barcode {
			exists, err := repo.ExistsByBarcode(ctx, *req.Barcode)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, shared.ErrDuplicateBarcode
			}
			if err := product.ChangeBarcode(*req.Barcode); err != nil {
				return nil, err
			}
		}
		if err := product.UpdateFields(req.apply(product.Fields())); err != nil {
			return nil, err
		}
		if err := repo.UpdateFields(ctx, product, expected); err != nil {
			return nil, err
		}
		return product, nil
	})
	if err != nil {
		return nil, err
	}

	logger.L(ctx).Info("Product updated", zap.String("barcode", product.Barcode))
	resp := ToProductResponse(p.Tenant(), product)
	return &resp, nil
}

// DeleteProduct removes a product and its history from the partition. A
// positive expectedVersion refuses the delete with CONCURRENCY_CONFLICT once
// the product changed after the caller read it; zero deletes whatever is
// stored.
func (s *LedgerService) DeleteProduct(ctx context.Context, p Partition, barcode string, expectedVersion int) (err error) {
	ctx, span := s.begin(ctx, "ledger.delete_product", p, barcode)
	defer func() { telemetry.EndSpan(span, err) }()

	product, err := p.Products().FindByBarcode(ctx, barcode)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(s.lockKey(p, product.ID))
	defer unlock()

	if expectedVersion > 0 && product.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	if err := p.Products().Delete(ctx, product.ID, expectedVersion); err != nil {
		return err
	}
	logger.L(ctx).Info("Product deleted", zap.String("barcode", barcode))
	return nil
}

// VerifyLedger recomputes the stock implied by the history and compares it
// with the running counter
func (s *LedgerService) VerifyLedger(ctx context.Context, p Partition, barcode string) (*LedgerAuditResponse, error) {
	product, err := s.Load(ctx, p, barcode, true)
	if err != nil {
		return nil, err
	}
	balance := catalog.LedgerBalance(product.History)
	audit := &LedgerAuditResponse{
		Barcode:       product.Barcode,
		CurrentStock:  product.CurrentStock,
		LedgerBalance: balance,
		Movements:     len(product.History),
		Consistent:    balance == product.CurrentStock && len(product.History) == product.MovementCount,
	}
	if !audit.Consistent {
		logger.L(logger.WithTenant(ctx, p.Tenant())).Error("Ledger out of balance",
			zap.String("barcode", product.Barcode),
			zap.Int64("current_stock", product.CurrentStock),
			zap.Int64("ledger_balance", balance),
		)
	}
	return audit, nil
}

// CreateCategory creates a category in the partition
func (s *LedgerService) CreateCategory(ctx context.Context, p Partition, req CreateCategoryRequest) (*CategoryResponse, error) {
	category, err := catalog.NewCategory(req.Name)
	if err != nil {
		return nil, err
	}
	if err := p.Categories().Create(ctx, category); err != nil {
		return nil, err
	}
	resp := ToCategoryResponse(category)
	return &resp, nil
}

// ListCategories returns the partition's categories by name
func (s *LedgerService) ListCategories(ctx context.Context, p Partition) ([]CategoryResponse, error) {
	categories, err := p.Categories().FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryResponse, len(categories))
	for i := range categories {
		out[i] = ToCategoryResponse(&categories[i])
	}
	return out, nil
}

func (s *LedgerService) mutateStock(
	ctx context.Context,
	p Partition,
	barcode string,
	direction catalog.MovementDirection,
	apply func(*catalog.Product) (*catalog.StockMovement, error),
) (*StockChangeResponse, error) {
	repo := p.Products()
	found, err := repo.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(s.lockKey(p, found.ID))
	defer unlock()

	var movement *catalog.StockMovement
	product, err := retryOnConflict(ctx, s, p.Tenant(), func() (*catalog.Product, error) {
		product, err := repo.FindByID(ctx, found.ID)
		if err != nil {
			return nil, err
		}
		expected := product.Version
		m, err := apply(product)
		if err != nil {
			return nil, err
		}
		if err := repo.AppendMovement(ctx, product, m, expected); err != nil {
			return nil, err
		}
		movement = m
		return product, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMovement(ctx, p.Tenant(), string(direction))

	logger.L(ctx).Info("Stock movement recorded",
		zap.String("barcode", product.Barcode),
		zap.String("direction", string(direction)),
		zap.Int64("quantity", movement.Quantity),
		zap.Int64("current_stock", product.CurrentStock),
	)

	product.History = nil
	return &StockChangeResponse{
		Product:  ToProductResponse(p.Tenant(), product),
		Movement: ToMovementResponse(*movement),
	}, nil
}

// createUnderFreeBarcode inserts the product built for the first free variant
// of base. A variant taken by a concurrent writer between the lookup and the
// insert moves the search on instead of failing.
func (s *LedgerService) createUnderFreeBarcode(
	ctx context.Context,
	p Partition,
	base string,
	build func(barcode string) (*catalog.Product, error),
) (*catalog.Product, error) {
	repo := p.Products()
	for from := 0; from < s.cfg.MaxBarcodeAttempts; {
		candidate, n, err := s.firstFree(ctx, repo, base, from)
		if err != nil {
			return nil, err
		}
		product, err := build(candidate)
		if err != nil {
			return nil, err
		}
		err = repo.Create(ctx, product)
		if err == nil {
			return product, nil
		}
		if !shared.IsKind(err, shared.KindDuplicateBarcode) {
			return nil, err
		}
		logger.L(ctx).Debug("Barcode taken concurrently, trying next variant", zap.String("barcode", candidate))
		from = n + 1
	}
	return nil, barcodesExhausted(base)
}

func (s *LedgerService) firstFree(ctx context.Context, repo catalog.ProductRepository, base string, from int) (string, int, error) {
	for n := from; n < s.cfg.MaxBarcodeAttempts; n++ {
		candidate := catalog.BarcodeCandidate(base, n)
		exists, err := repo.ExistsByBarcode(ctx, candidate)
		if err != nil {
			return "", 0, err
		}
		if !exists {
			return candidate, n, nil
		}
	}
	return "", 0, barcodesExhausted(base)
}

func (s *LedgerService) checkCategory(ctx context.Context, p Partition, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	exists, err := p.Categories().Exists(ctx, *id)
	if err != nil {
		return err
	}
	if !exists {
		return shared.NewKindError(shared.KindInvalidInput, "Category not found")
	}
	return nil
}

func (s *LedgerService) begin(ctx context.Context, name string, p Partition, barcode string) (context.Context, trace.Span) {
	ctx = logger.WithTenant(ctx, p.Tenant())
	return telemetry.StartSpan(ctx, name,
		telemetry.AttrTenant.String(p.Tenant()),
		telemetry.AttrBarcode.String(barcode),
	)
}

func (s *LedgerService) lockKey(p Partition, id uuid.UUID) string {
	return p.Tenant() + "/" + id.String()
}

// retryOnConflict runs op until it succeeds, fails with anything other than
// a version conflict, or the conflict retries are spent.
func retryOnConflict[T any](ctx context.Context, s *LedgerService, tenant string, op func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 100 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.MaxConflictRetries)), ctx)

	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !shared.IsKind(err, shared.KindConcurrencyConflict) {
			return v, backoff.Permanent(err)
		}
		s.metrics.RecordConflict(ctx, tenant)
		return v, err
	}, b, func(err error, next time.Duration) {
		logger.L(ctx).Debug("Version conflict, retrying", zap.Duration("backoff", next), zap.Error(err))
	})
}

func barcodesExhausted(base string) error {
	return shared.NewKindError(shared.KindDuplicateBarcode,
		fmt.Sprintf("No free barcode variant of %q", base))
}
