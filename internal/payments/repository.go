package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Repository persists the gateway correlation ids on orders and customers.
type Repository interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindCustomer(ctx context.Context, userID uuid.UUID) (*models.User, error)
	SaveCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	SaveStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindCustomer(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveCheckoutSession records the session only; the payment intent is
// written by the payment confirmation webhook, which is what marks the order paid.
func (r *repository) SaveCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Update("checkout_session_id", sessionID).Error
	// checkout_session_id is the only unique column this update touches.
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout session already linked to another order")
	}
	return err
}

func (r *repository) SaveStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("stripe_customer_id", customerID).Error
}
