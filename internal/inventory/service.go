package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/stock-ledger/internal/auth"
	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/domain/user"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient permissions")
)

// Service is the entry point for product and stock operations. Every call
// carries the principal of the request it serves.
type Service struct {
	products  store.ProductStore
	ledger    *stock.Ledger
	monitor   stock.Monitor
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the service. publisher may be nil, in which case no
// events are emitted.
func NewService(products store.ProductStore, ledger *stock.Ledger, monitor stock.Monitor, publisher Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		products:  products,
		ledger:    ledger,
		monitor:   monitor,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "inventory")),
		now:       time.Now,
	}
}

func (s *Service) Monitor() stock.Monitor {
	return s.monitor
}

func (s *Service) CreateProduct(ctx context.Context, p auth.Principal, cmd CreateProduct) (product.Product, error) {
	if err := requireAuthenticated(p); err != nil {
		return product.Product{}, err
	}

	candidate, err := product.New(product.Details{
		Name:        cmd.Name,
		Description: cmd.Description,
		Category:    cmd.Category,
		Price:       cmd.Price,
	}, cmd.Quantity)
	if err != nil {
		return product.Product{}, err
	}
	if cmd.Quantity > stock.MaxQuantity {
		return product.Product{}, fmt.Errorf("%w: quantity must not exceed %d", product.ErrValidation, stock.MaxQuantity)
	}

	created, err := s.products.Create(ctx, candidate)
	if err != nil {
		return product.Product{}, err
	}

	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.Int("quantity", created.Quantity),
		zap.String("user_id", p.UserID),
	)
	return created, nil
}

func (s *Service) ListProducts(ctx context.Context, p auth.Principal) ([]product.Product, error) {
	if err := requireAuthenticated(p); err != nil {
		return nil, err
	}
	return s.products.List(ctx)
}

func (s *Service) GetProduct(ctx context.Context, p auth.Principal, id string) (product.Product, error) {
	if err := requireAuthenticated(p); err != nil {
		return product.Product{}, err
	}
	return s.products.Get(ctx, id)
}

// UpdateProduct replaces the descriptive fields. A quantity in the command is
// applied afterwards as an overwrite through the ledger; if that overwrite
// fails the previous details are written back.
func (s *Service) UpdateProduct(ctx context.Context, p auth.Principal, cmd UpdateProduct) (product.Product, error) {
	if err := requireAuthenticated(p); err != nil {
		return product.Product{}, err
	}

	d := product.Details{
		Name:        cmd.Name,
		Description: cmd.Description,
		Category:    cmd.Category,
		Price:       cmd.Price,
	}
	if err := d.Validate(); err != nil {
		return product.Product{}, err
	}
	if cmd.Quantity != nil {
		switch {
		case *cmd.Quantity < 0:
			return product.Product{}, fmt.Errorf("%w: quantity must not be negative", product.ErrValidation)
		case *cmd.Quantity > stock.MaxQuantity:
			return product.Product{}, fmt.Errorf("%w: quantity must not exceed %d", product.ErrValidation, stock.MaxQuantity)
		}
	}

	if cmd.Quantity == nil {
		return s.products.UpdateDetails(ctx, cmd.ProductID, d)
	}

	before, err := s.products.Get(ctx, cmd.ProductID)
	if err != nil {
		return product.Product{}, err
	}
	updated, err := s.products.UpdateDetails(ctx, cmd.ProductID, d)
	if err != nil {
		return product.Product{}, err
	}

	result, err := s.ledger.Set(ctx, cmd.ProductID, *cmd.Quantity)
	if err != nil {
		s.restoreDetails(ctx, before)
		return product.Product{}, err
	}
	s.publish(ctx, s.event(p, updated.Name, KindSet, result, ""))

	return s.products.Get(ctx, cmd.ProductID)
}

func (s *Service) restoreDetails(ctx context.Context, before product.Product) {
	if _, err := s.products.UpdateDetails(context.WithoutCancel(ctx), before.ID, before.Details()); err != nil {
		s.logger.Error("failed to restore product details after quantity overwrite failed",
			zap.String("product_id", before.ID),
			zap.Error(err),
		)
	}
}

// DeleteProduct removes a product. Only admins may delete.
func (s *Service) DeleteProduct(ctx context.Context, p auth.Principal, id string) error {
	if err := requireAuthenticated(p); err != nil {
		return err
	}
	if !p.HasRole(user.RoleAdmin) {
		return fmt.Errorf("%w: deleting products requires role %s", ErrForbidden, user.RoleAdmin)
	}

	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.String("product_id", id), zap.String("user_id", p.UserID))
	return nil
}

// AdjustStock adds or removes stock through the ledger and reports whether the
// product is now low on stock.
func (s *Service) AdjustStock(ctx context.Context, p auth.Principal, cmd AdjustStock) (StockChange, error) {
	if err := requireAuthenticated(p); err != nil {
		return StockChange{}, err
	}

	direction, err := stock.ParseDirection(cmd.Type)
	if err != nil {
		return StockChange{}, err
	}
	adj := stock.Adjustment{Direction: direction, Quantity: cmd.Quantity, RequestID: cmd.RequestID}

	result, err := s.ledger.Apply(ctx, cmd.ProductID, adj)
	if err != nil {
		return StockChange{}, err
	}

	change := StockChange{
		ProductID:        result.ProductID,
		PreviousQuantity: result.Previous,
		NewQuantity:      result.Quantity,
		LowStock:         s.monitor.IsLowQuantity(result.Quantity),
		Replayed:         result.Replayed,
	}
	if result.Replayed {
		return change, nil
	}

	kind := KindAdd
	if direction == stock.DirectionRemove {
		kind = KindRemove
	}
	s.publish(ctx, s.event(p, s.productName(ctx, cmd.ProductID), kind, result, cmd.RequestID))

	return change, nil
}

func (s *Service) LowStockProducts(ctx context.Context, p auth.Principal) (LowStockReport, error) {
	if err := requireAuthenticated(p); err != nil {
		return LowStockReport{}, err
	}

	all, err := s.products.List(ctx)
	if err != nil {
		return LowStockReport{}, err
	}
	return LowStockReport{
		Threshold: s.monitor.Threshold(),
		Products:  s.monitor.Evaluate(all),
	}, nil
}

func (s *Service) event(p auth.Principal, name, kind string, result stock.Result, requestID string) StockAdjusted {
	return StockAdjusted{
		ID:               uuid.New().String(),
		Type:             EventStockAdjusted,
		ProductID:        result.ProductID,
		ProductName:      name,
		Kind:             kind,
		Delta:            result.Delta(),
		PreviousQuantity: result.Previous,
		Quantity:         result.Quantity,
		RequestID:        requestID,
		UserID:           p.UserID,
		LowStock:         s.monitor.IsLowQuantity(result.Quantity),
		Threshold:        s.monitor.Threshold(),
		OccurredAt:       s.now().UTC(),
	}
}

// productName is best effort; the event is still published if the product
// was deleted right after the adjustment.
func (s *Service) productName(ctx context.Context, id string) string {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return ""
	}
	return p.Name
}

// publish never fails the caller: the quantity change is already committed.
func (s *Service) publish(ctx context.Context, e StockAdjusted) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e.ProductID, e); err != nil {
		s.logger.Error("failed to publish stock event",
			zap.String("event_id", e.ID),
			zap.String("product_id", e.ProductID),
			zap.String("kind", e.Kind),
			zap.Int("previous_quantity", e.PreviousQuantity),
			zap.Int("quantity", e.Quantity),
			zap.Error(err),
		)
	}
}

func requireAuthenticated(p auth.Principal) error {
	if p.IsZero() {
		return ErrUnauthenticated
	}
	return nil
}
