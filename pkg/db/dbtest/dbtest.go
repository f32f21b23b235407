// Package dbtest opens in-memory sqlite databases carrying the marketplace
// schema for package tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Open returns a fresh migrated database. Each call gets its own named
// in-memory database so parallel tests never share rows.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:mkt_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.User{},
		&models.Address{},
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// Serialize limits the pool to one connection, turning concurrent
// transactions into a queue the way row locks would on Postgres.
func Serialize(t *testing.T, conn *gorm.DB) {
	t.Helper()
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}

func User(t *testing.T, conn *gorm.DB, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{
		Email: uuid.NewString() + "@example.com",
		Name:  string(role),
		Role:  role,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func Address(t *testing.T, conn *gorm.DB, userID uuid.UUID, line1 string) models.Address {
	t.Helper()
	address := models.Address{
		UserID:        userID,
		RecipientName: "Ada Buyer",
		Line1:         line1,
		City:          "Springfield",
		State:         "IL",
		PostalCode:    "62701",
		Country:       "US",
	}
	if err := conn.Create(&address).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return address
}

func Product(t *testing.T, conn *gorm.DB, sellerID uuid.UUID, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		SellerID: sellerID,
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

// CartLine is a (product, quantity) pair for Cart.
type CartLine struct {
	ProductID uuid.UUID
	Quantity  int
}

func Cart(t *testing.T, conn *gorm.DB, customerID uuid.UUID, lines ...CartLine) models.Cart {
	t.Helper()
	cart := models.Cart{CustomerID: customerID}
	for _, line := range lines {
		cart.Items = append(cart.Items, models.CartItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	if err := conn.Create(&cart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	return cart
}

// ItemSpec describes one seeded order line.
type ItemSpec struct {
	Product  models.Product
	Quantity int
	Status   enums.OrderItemStatus
}

// Order persists an order directly, bypassing placement and stock reservation.
func Order(t *testing.T, conn *gorm.DB, customerID uuid.UUID, status enums.OrderStatus, specs ...ItemSpec) models.Order {
	t.Helper()
	order := models.Order{
		CustomerID:      customerID,
		Status:          status,
		TotalPrice:      decimal.Zero,
		ShippingAddress: types.Address{
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "62701",
			Country:    "US",
		},
	}
	base := time.Now().UTC()
	for i, spec := range specs {
		itemStatus := spec.Status
		if itemStatus == "" {
			itemStatus = enums.OrderItemStatusPreparing
		}
		item := models.OrderItem{
			ProductID:       spec.Product.ID,
			SellerID:        spec.Product.SellerID,
			ProductName:     spec.Product.Name,
			Quantity:        spec.Quantity,
			PriceAtPurchase: spec.Product.Price,
			Status:          itemStatus,
			CreatedAt:       base.Add(time.Duration(i) * time.Millisecond),
		}
		order.TotalPrice = order.TotalPrice.Add(item.Subtotal())
		order.Items = append(order.Items, item)
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// MarkPaid sets the payment correlation id on an order.
func MarkPaid(t *testing.T, conn *gorm.DB, orderID uuid.UUID, paymentIntentID string) {
	t.Helper()
	if err := conn.Model(&models.Order{}).Where("id = ?", orderID).Update("payment_intent_id", paymentIntentID).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}
}

func Stock(t *testing.T, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}

func LoadOrder(t *testing.T, conn *gorm.DB, orderID uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	err := conn.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}

func LoadItem(t *testing.T, conn *gorm.DB, itemID uuid.UUID) models.OrderItem {
	t.Helper()
	var item models.OrderItem
	if err := conn.First(&item, "id = ?", itemID).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	return item
}

// Events returns the outbox event types recorded for an aggregate, oldest first.
func Events(t *testing.T, conn *gorm.DB, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	if err := conn.Where("aggregate_id = ?", aggregateID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox events: %v", err)
	}
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}
