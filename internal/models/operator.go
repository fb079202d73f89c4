package models

import (
	"time"
)

// Operator represents a human operator account with access to the
// governor's control surface
type Operator struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	HashedPassword string    `json:"-" db:"hashed_password"` // Never expose in JSON
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// LoginRequest represents authentication request payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents authentication response with JWT token
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Operator  OperatorInfo `json:"operator"`
}

// OperatorInfo represents safe operator information (without sensitive data)
type OperatorInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ToOperatorInfo converts Operator to OperatorInfo (safe for API responses)
func (o *Operator) ToOperatorInfo() OperatorInfo {
	return OperatorInfo{
		ID:        o.ID,
		Name:      o.Name,
		Email:     o.Email,
		CreatedAt: o.CreatedAt,
	}
}
