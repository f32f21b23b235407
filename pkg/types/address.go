package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

const defaultCountry = "US"

// Address is the shipping address copied onto an order at placement time.
// It is stored as a JSON document so later edits to the customer's saved
// addresses never reach existing orders.
type Address struct {
	RecipientName string  `json:"recipient_name,omitempty"`
	Line1         string  `json:"line1"`
	Line2         *string `json:"line2,omitempty"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	PostalCode    string  `json:"postal_code"`
	Country       string  `json:"country"`
	Phone         *string `json:"phone,omitempty"`
}

// Validate checks the fields every shippable address must carry.
func (a Address) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("address: missing %s", f.name)
		}
	}
	return nil
}

// Value stores the snapshot as JSON, defaulting the country.
func (a Address) Value() (driver.Value, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Country) == "" {
		a.Country = defaultCountry
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: encode: %w", err)
	}
	return string(raw), nil
}

func (a *Address) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("address: cannot scan %T", src)
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("address: decode: %w", err)
	}
	return nil
}
