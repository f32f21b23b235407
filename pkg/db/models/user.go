package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// User is the marketplace identity referenced by orders and products.
type User struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email            string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name             string         `gorm:"column:name;not null"`
	Role             enums.UserRole `gorm:"column:role;type:text;not null"`
	StripeCustomerID *string        `gorm:"column:stripe_customer_id"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
