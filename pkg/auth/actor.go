package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func NewActor(userID uuid.UUID, role enums.UserRole) Actor {
	return Actor{UserID: userID, Role: role}
}

func (a Actor) IsAdmin() bool    { return a.Role == enums.UserRoleAdmin }
func (a Actor) IsSeller() bool   { return a.Role == enums.UserRoleSeller }
func (a Actor) IsCustomer() bool { return a.Role == enums.UserRoleCustomer }

// Valid reports whether the actor carries an identity and a known role.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}
