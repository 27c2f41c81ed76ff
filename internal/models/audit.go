package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	Actor      string     `json:"actor"`      // wallet address or "system"
	ActorType  string     `json:"actor_type"` // user/admin/system
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"` // operation/token/session
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	Meta       any        `json:"meta,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
