package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	TransitionItem(ctx context.Context, itemID uuid.UUID, from, to enums.OrderItemStatus) (bool, error)
	TransitionRefund(ctx context.Context, itemID uuid.UUID, from *enums.RefundStatus, updates map[string]any) (bool, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListOrders(ctx context.Context, params pagination.Params) (*OrderList, error)
	HasDeliveredPurchase(ctx context.Context, customerID, productID uuid.UUID) (bool, error)
	ListPendingRefunds(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error)
	ListApprovedRefunds(ctx context.Context, processedBefore time.Time, maxAttempts, limit int) ([]models.OrderItem, error)
}
