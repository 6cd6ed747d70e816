package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Product{},
		&models.InventoryItem{},
		&models.Order{},
		&models.OrderLine{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, NewDeltaApplier())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func seedStock(t *testing.T, db *gorm.DB, name string, quantity int) uuid.UUID {
	t.Helper()
	product := models.Product{Name: name}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := db.Create(&models.InventoryItem{ProductID: product.ID, Quantity: quantity}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	return product.ID
}

func stockFor(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return item.Quantity
}

func TestCreateOrderWithLines(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	product := seedStock(t, db, "widget", 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Name:    "Ada",
		Address: "1 Loop Rd",
		Lines:   []LineInput{{ProductID: product, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("new orders must start pending, got %s", order.Status)
	}

	var lines []models.OrderLine
	if err := db.Find(&lines, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load lines: %v", err)
	}
	if len(lines) != 1 || lines[0].ProductID != product || lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateOrderInput
	}{
		{"missing name", CreateOrderInput{Address: "addr", Lines: []LineInput{{ProductID: uuid.New(), Quantity: 1}}}},
		{"missing address", CreateOrderInput{Name: "Ada", Lines: []LineInput{{ProductID: uuid.New(), Quantity: 1}}}},
		{"no lines", CreateOrderInput{Name: "Ada", Address: "addr"}},
		{"non-positive quantity", CreateOrderInput{Name: "Ada", Address: "addr", Lines: []LineInput{{ProductID: uuid.New(), Quantity: 0}}}},
	}
	for _, tc := range cases {
		_, err := svc.Create(ctx, tc.input)
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestShipRejectsWhenAnyLineOverdraws(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	productA := seedStock(t, db, "widget", 5)
	productB := seedStock(t, db, "gadget", 1)

	order, err := svc.Create(ctx, CreateOrderInput{
		Name:    "Ada",
		Address: "1 Loop Rd",
		Lines: []LineInput{
			{ProductID: productA, Quantity: 2},
			{ProductID: productB, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	err = svc.Ship(ctx, order.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if got := stockFor(t, db, productA); got != 5 {
		t.Fatalf("no partial deduction allowed, widget stock is %d", got)
	}
	if got := stockFor(t, db, productB); got != 1 {
		t.Fatalf("no partial deduction allowed, gadget stock is %d", got)
	}

	var stored models.Order
	if err := db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusPending {
		t.Fatalf("failed shipment must leave order pending, got %s", stored.Status)
	}
}

func TestShipDeductsAndMarksShipped(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	productA := seedStock(t, db, "widget", 5)
	productB := seedStock(t, db, "gadget", 3)

	order, err := svc.Create(ctx, CreateOrderInput{
		Name:    "Ada",
		Address: "1 Loop Rd",
		Lines: []LineInput{
			{ProductID: productA, Quantity: 2},
			{ProductID: productB, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.Ship(ctx, order.ID); err != nil {
		t.Fatalf("ship: %v", err)
	}

	if got := stockFor(t, db, productA); got != 3 {
		t.Fatalf("expected widget stock 3, got %d", got)
	}
	if got := stockFor(t, db, productB); got != 0 {
		t.Fatalf("expected gadget stock 0, got %d", got)
	}

	var stored models.Order
	if err := db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusShipped {
		t.Fatalf("expected shipped status, got %s", stored.Status)
	}
}

func TestShipTwiceFailsWithoutTouchingStock(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	product := seedStock(t, db, "widget", 5)

	order, err := svc.Create(ctx, CreateOrderInput{
		Name:    "Ada",
		Address: "1 Loop Rd",
		Lines:   []LineInput{{ProductID: product, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.Ship(ctx, order.ID); err != nil {
		t.Fatalf("first ship: %v", err)
	}

	err = svc.Ship(ctx, order.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict on second ship, got %v", err)
	}
	if got := stockFor(t, db, product); got != 0 {
		t.Fatalf("second ship must not touch stock, got %d", got)
	}
}

func TestShipUnknownOrder(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	err := svc.Ship(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteOrderCascadesLines(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	product := seedStock(t, db, "widget", 5)

	order, err := svc.Create(ctx, CreateOrderInput{
		Name:    "Ada",
		Address: "1 Loop Rd",
		Lines:   []LineInput{{ProductID: product, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var count int64
	if err := db.Model(&models.OrderLine{}).Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascaded line delete, found %d", count)
	}
}

func TestListIncludesLines(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	product := seedStock(t, db, "widget", 5)

	if _, err := svc.Create(ctx, CreateOrderInput{
		Name:    "Ada",
		Address: "1 Loop Rd",
		Lines:   []LineInput{{ProductID: product, Quantity: 2}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	result, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result) != 1 || len(result[0].Products) != 1 {
		t.Fatalf("expected one order with one line, got %+v", result)
	}
	line := result[0].Products[0]
	if line.ProductID != product || line.Name != "widget" || line.Quantity != 2 {
		t.Fatalf("unexpected line view: %+v", line)
	}
	if result[0].Status != enums.OrderStatusPending.String() {
		t.Fatalf("expected pending status, got %s", result[0].Status)
	}
}
