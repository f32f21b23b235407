package helpers

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Line is one product and the total quantity requested for it.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// MergeCartLines folds duplicate products together and orders the result by
// product id, so concurrent placements lock product rows in the same order.
func MergeCartLines(items []models.CartItem) ([]Line, error) {
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart line for product %s has quantity %d", item.ProductID, item.Quantity)).
				WithDetails(map[string]any{"product_id": item.ProductID, "quantity": item.Quantity})
		}
		totals[item.ProductID] += item.Quantity
	}

	lines := make([]Line, 0, len(totals))
	for productID, qty := range totals {
		lines = append(lines, Line{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].ProductID[:], lines[j].ProductID[:]) < 0
	})
	return lines, nil
}
