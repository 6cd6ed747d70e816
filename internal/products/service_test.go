package product

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
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
	dsn := "file:products_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.InventoryItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func TestCreateProduct(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	note := "fragile"
	created, err := svc.Create(ctx, CreateProductInput{Name: "widget", Note: &note})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}

	var stored models.Product
	if err := db.First(&stored, "id = ?", created.ID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if stored.Name != "widget" || stored.Note == nil || *stored.Note != "fragile" {
		t.Fatalf("unexpected stored product: %+v", stored)
	}
}

func TestCreateProductRequiresName(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), CreateProductInput{Name: "   "})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteProductCascadesInventory(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductInput{Name: "widget"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(&models.InventoryItem{ProductID: created.ID, Quantity: 5}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var count int64
	if err := db.Model(&models.InventoryItem{}).Where("product_id = ?", created.ID).Count(&count).Error; err != nil {
		t.Fatalf("count inventory: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascaded inventory delete, found %d rows", count)
	}
}

func TestDeleteMissingProduct(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	err := svc.Delete(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		if err := db.Create(&models.Product{Name: name}).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}

	products, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
}
