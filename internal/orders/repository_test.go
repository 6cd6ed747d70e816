package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

func setupRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_repo_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.OrderLine{},
	))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, lines ...models.OrderLine) *models.Order {
	t.Helper()

	order := models.Order{
		Name:    "Ada",
		Address: "1 Loop Rd",
		Status:  enums.OrderStatusPending,
		Lines:   lines,
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func TestRepositoryFindByIDPreloadsLines(t *testing.T) {
	t.Parallel()

	db := setupRepoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := uuid.New()
	order := seedOrder(t, db, models.OrderLine{ProductID: productID, Quantity: 4})

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, found.Lines, 1)
	assert.Equal(t, productID, found.Lines[0].ProductID)
	assert.Equal(t, 4, found.Lines[0].Quantity)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryProductNamesSkipsDeletedProducts(t *testing.T) {
	t.Parallel()

	db := setupRepoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	widget := models.Product{Name: "widget"}
	require.NoError(t, db.Create(&widget).Error)
	deletedID := uuid.New()

	names, err := repo.ProductNames(ctx, []uuid.UUID{widget.ID, deletedID})
	require.NoError(t, err)
	assert.Equal(t, "widget", names[widget.ID])
	_, ok := names[deletedID]
	assert.False(t, ok, "a product id without a products row must drop out of the map")

	empty, err := repo.ProductNames(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepositoryUpdateStatusGuardsCurrentStatus(t *testing.T) {
	t.Parallel()

	db := setupRepoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, models.OrderLine{ProductID: uuid.New(), Quantity: 1})

	affected, err := repo.UpdateStatus(ctx, order.ID,
		enums.OrderStatusPending.String(), enums.OrderStatusShipped.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// Second transition misses the guard and must not touch the row.
	affected, err = repo.UpdateStatus(ctx, order.ID,
		enums.OrderStatusPending.String(), enums.OrderStatusShipped.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusShipped, stored.Status)
}
