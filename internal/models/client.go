package models

import (
	"time"

	"github.com/google/uuid"
)

// Contact kinds
const (
	ContactKindEmail = "email"
	ContactKindPhone = "phone"
)

// Client is the prospective customer a record is issued against. Client
// management itself lives in the surrounding platform; this service only
// reads ownership and contact addresses.
type Client struct {
	ID          uuid.UUID `json:"id"`
	AgentUserID uuid.UUID `json:"agent_user_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type ClientContact struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id"`
	Kind     string    `json:"kind"`
	Value    string    `json:"value"`
}
