package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Reservation is the result of a successful stock decrement. UnitPrice is read
// inside the same transaction that took the stock.
type Reservation struct {
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Ledger takes and returns product stock. Every call runs inside the caller's
// transaction so a failed placement rolls back all of its decrements.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (*Reservation, error)
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ledger struct {
	now func() time.Time
}

// NewLedger builds the stock ledger over the products table.
func NewLedger() Ledger {
	return &ledger{now: func() time.Time { return time.Now().UTC() }}
}

// Reserve decrements stock with a single conditional UPDATE. Concurrent
// reservations of the same product serialize on the row, and the stock >= qty
// guard makes the losing one affect zero rows instead of going negative.
func (l *ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (*Reservation, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ? AND is_active = ? AND deleted_by_admin = ?", productID, qty, true, false).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": l.now(),
		})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}

	product, err := loadProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		if !product.Purchasable() {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not available")
		}
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", product.Name)).
			WithDetails(map[string]any{
				"product_id": productID.String(),
				"requested":  qty,
				"available":  product.Stock,
			})
	}

	return &Reservation{
		ProductID: product.ID,
		SellerID:  product.SellerID,
		Name:      product.Name,
		Quantity:  qty,
		UnitPrice: product.Price,
	}, nil
}

// Release returns stock to a product. There is no upper bound.
func (l *ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": l.now(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func loadProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := tx.WithContext(ctx).
		Select("id", "seller_id", "name", "price", "stock", "is_active", "deleted_by_admin").
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}
