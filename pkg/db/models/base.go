package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key before insert. Postgres also has a
// gen_random_uuid() default, but the id must be known to the caller.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error        { assignID(&u.ID); return nil }
func (a *Address) BeforeCreate(*gorm.DB) error     { assignID(&a.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error     { assignID(&p.ID); return nil }
func (c *Cart) BeforeCreate(*gorm.DB) error        { assignID(&c.ID); return nil }
func (c *CartItem) BeforeCreate(*gorm.DB) error    { assignID(&c.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error       { assignID(&o.ID); return nil }
func (o *OrderItem) BeforeCreate(*gorm.DB) error   { assignID(&o.ID); return nil }
func (o *OutboxEvent) BeforeCreate(*gorm.DB) error { assignID(&o.ID); return nil }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error   { assignID(&d.ID); return nil }
