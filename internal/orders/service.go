package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/inventory"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DeltaApplier abstracts the inventory mutation engine for shipment.
type DeltaApplier interface {
	Apply(ctx context.Context, tx *gorm.DB, deltas []inventory.Delta) error
}

type inventoryEngine struct{}

func (inventoryEngine) Apply(ctx context.Context, tx *gorm.DB, deltas []inventory.Delta) error {
	return inventory.ApplyDeltas(ctx, tx, deltas)
}

// NewDeltaApplier exposes the default inventory mutation engine.
func NewDeltaApplier() DeltaApplier {
	return inventoryEngine{}
}

// LineInput is one product/quantity pair of a new order.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderInput holds the validated payload to create an order.
type CreateOrderInput struct {
	Name    string
	Address string
	Note    *string
	Lines   []LineInput
}

// LineView is the read shape for one order line, including the product name
// when the product still exists.
type LineView struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
}

// OrderView is the read shape for order listings.
type OrderView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Note      *string    `json:"note"`
	Status    string     `json:"status"`
	CreatedAt string     `json:"created_at"`
	Products  []LineView `json:"products"`
}

// Service exposes order management and shipment operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	List(ctx context.Context) ([]OrderView, error)
	Ship(ctx context.Context, orderID uuid.UUID) error
	Delete(ctx context.Context, orderID uuid.UUID) error
}

type service struct {
	repo   *Repository
	tx     txRunner
	engine DeltaApplier
}

// NewService constructs an orders service instance.
func NewService(repo *Repository, tx txRunner, engine DeltaApplier) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if engine == nil {
		engine = inventoryEngine{}
	}
	return &service{repo: repo, tx: tx, engine: engine}, nil
}

// Create persists the order header and its lines atomically.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	name := strings.TrimSpace(input.Name)
	address := strings.TrimSpace(input.Address)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "products must contain at least one entry")
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(
				pkgerrors.CodeValidation,
				fmt.Sprintf("quantity for product %s must be a positive integer", line.ProductID),
			)
		}
	}

	order := &models.Order{
		Name:    name,
		Address: address,
		Note:    input.Note,
		Status:  enums.OrderStatusPending,
	}
	for _, line := range input.Lines {
		order.Lines = append(order.Lines, models.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, cerr := s.repo.WithTx(tx).Create(ctx, order); cerr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, cerr, "create order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// List returns all orders with their lines, newest first.
func (s *service) List(ctx context.Context) ([]OrderView, error) {
	result, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	var productIDs []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, order := range result {
		for _, line := range order.Lines {
			if !seen[line.ProductID] {
				seen[line.ProductID] = true
				productIDs = append(productIDs, line.ProductID)
			}
		}
	}
	names, err := s.repo.ProductNames(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve product names")
	}

	views := make([]OrderView, 0, len(result))
	for _, order := range result {
		view := OrderView{
			ID:        order.ID,
			Name:      order.Name,
			Address:   order.Address,
			Note:      order.Note,
			Status:    order.Status.String(),
			CreatedAt: order.CreatedAt.UTC().Format(time.RFC3339),
			Products:  make([]LineView, 0, len(order.Lines)),
		}
		for _, line := range order.Lines {
			view.Products = append(view.Products, LineView{
				ProductID: line.ProductID,
				Name:      names[line.ProductID],
				Quantity:  line.Quantity,
			})
		}
		views = append(views, view)
	}
	return views, nil
}

// Ship deducts every line quantity from inventory and marks the order shipped,
// all inside one transaction. A second ship of the same order fails with a
// state conflict and leaves inventory untouched.
func (s *service) Ship(ctx context.Context, orderID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order.Status == enums.OrderStatusShipped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s already shipped", orderID))
		}
		if len(order.Lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order %s has no lines", orderID))
		}

		deltas := make([]inventory.Delta, 0, len(order.Lines))
		for _, line := range order.Lines {
			deltas = append(deltas, inventory.Delta{ProductID: line.ProductID, Quantity: -line.Quantity})
		}
		if aerr := s.engine.Apply(ctx, tx, deltas); aerr != nil {
			return aerr
		}

		// Guarded transition: a concurrent ship that committed first makes
		// this a no-op, which must surface as a conflict.
		affected, uerr := repo.UpdateStatus(ctx, orderID,
			enums.OrderStatusPending.String(), enums.OrderStatusShipped.String())
		if uerr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, uerr, "mark order shipped")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s already shipped", orderID))
		}
		return nil
	})
}

// Delete removes an order and its lines.
func (s *service) Delete(ctx context.Context, orderID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).Delete(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
		}
		return nil
	})
}
