package auth

import (
	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
)

// Principal is the authenticated caller as seen by domain services.
type Principal struct {
	UserID uuid.UUID
	Role   enums.Role
}

// PrincipalFromClaims converts verified token claims into a Principal.
func PrincipalFromClaims(claims *AccessTokenClaims) Principal {
	if claims == nil {
		return Principal{}
	}
	return Principal{UserID: claims.UserID, Role: claims.Role}
}

func (p Principal) IsAdmin() bool {
	return p.Role == enums.RoleAdmin
}

// Actor returns the outbox actor reference for events produced by p.
func (p Principal) Actor() *outbox.ActorRef {
	return outbox.NewActor(p.UserID, string(p.Role))
}
