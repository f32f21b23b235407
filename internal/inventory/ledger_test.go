package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func TestReserveDecrementsStockAndReturnsPrice(t *testing.T) {
	conn := newTestDB(t)
	product := seedProduct(t, conn, 5, "12.50")

	res, err := NewLedger().Reserve(context.Background(), conn, product.ID, 3)
	require.NoError(t, err)
	require.Equal(t, 3, res.Quantity)
	require.True(t, decimal.RequireFromString("12.50").Equal(res.UnitPrice))
	require.Equal(t, product.SellerID, res.SellerID)
	require.Equal(t, 2, stockOf(t, conn, product.ID))
}

func TestReserveInsufficientStock(t *testing.T) {
	conn := newTestDB(t)
	product := seedProduct(t, conn, 2, "4.00")

	_, err := NewLedger().Reserve(context.Background(), conn, product.ID, 3)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.CodeOf(err))
	require.Equal(t, 2, stockOf(t, conn, product.ID))
}

func TestReserveRejectsUnavailableProducts(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()

	_, err := ledger.Reserve(context.Background(), conn, uuid.New(), 1)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	inactive := seedProduct(t, conn, 10, "1.00")
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)
	_, err = ledger.Reserve(context.Background(), conn, inactive.ID, 1)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	require.Equal(t, 10, stockOf(t, conn, inactive.ID))

	_, err = ledger.Reserve(context.Background(), conn, inactive.ID, 0)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestReleaseIncrementsStock(t *testing.T) {
	conn := newTestDB(t)
	product := seedProduct(t, conn, 0, "3.00")
	ledger := NewLedger()

	require.NoError(t, ledger.Release(context.Background(), conn, product.ID, 4))
	require.Equal(t, 4, stockOf(t, conn, product.ID))

	err := ledger.Release(context.Background(), conn, uuid.New(), 1)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	err = ledger.Release(context.Background(), conn, product.ID, -1)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestReserveRollsBackWithTransaction(t *testing.T) {
	conn := newTestDB(t)
	product := seedProduct(t, conn, 5, "2.00")
	client := db.FromConn(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := NewLedger().Reserve(context.Background(), tx, product.ID, 5); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "abort")
	})
	require.Error(t, err)
	require.Equal(t, 5, stockOf(t, conn, product.ID))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	conn := newTestDB(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	const stock = 5
	product := seedProduct(t, conn, stock, "9.99")
	client := db.FromConn(conn)
	ledger := NewLedger()

	var (
		wg        sync.WaitGroup
		succeeded int64
		short     int64
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := ledger.Reserve(context.Background(), tx, product.ID, 1)
				return err
			})
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case pkgerrors.CodeOf(err) == pkgerrors.CodeInsufficientStock:
				atomic.AddInt64(&short, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(stock), succeeded)
	require.Equal(t, int64(12-stock), short)
	require.Equal(t, 0, stockOf(t, conn, product.ID))
}

func TestReserveIssuesConditionalUpdate(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	productID := uuid.New()
	mock.ExpectExec(`UPDATE "products" SET .*stock - \$1.* WHERE id = \$3 AND stock >= \$4 AND is_active = \$5 AND deleted_by_admin = \$6`).
		WithArgs(2, sqlmock.AnyArg(), productID, 2, true, false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "id","seller_id","name","price","stock","is_active","deleted_by_admin" FROM "products" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id", "name", "price", "stock", "is_active", "deleted_by_admin"}).
			AddRow(productID, uuid.New(), "Lamp", "20.00", 1, true, false))

	_, err = NewLedger().Reserve(context.Background(), conn, productID, 2)
	require.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("migrate products: %v", err)
	}
	return conn
}

func seedProduct(t *testing.T, conn *gorm.DB, stock int, price string) models.Product {
	t.Helper()
	product := models.Product{
		SellerID: uuid.New(),
		Name:     "product-" + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func stockOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}
