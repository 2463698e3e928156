package models

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the success body shared by the gateway and its downstream services.
type Envelope struct {
	Data any `json:"data"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Identity is what the auth service reports for a valid bearer token.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
}

type RegisterUser struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name,omitempty" validate:"omitempty,max=128"`
	LastName string `json:"lastName,omitempty" validate:"omitempty,max=128"`
}

type AuthenticateUser struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// User is the auth service's view of a registered account.
type User = Identity

type TokenGenerated struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

type StockMarketQueried struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Region   string `json:"region"`
	Currency string `json:"currency"`
}

type QuoteQueried struct {
	Open          float64 `json:"open"`
	Higher        float64 `json:"higher"`
	Lower         float64 `json:"lower"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previousClose"`
	Variation     float64 `json:"variation"`
}

type StockDataRetrieved struct {
	StockMarketQueried
	Quote QuoteQueried `json:"quote"`
}

type ServiceStatus string

const (
	StatusOnline  ServiceStatus = "online"
	StatusOffline ServiceStatus = "offline"
)

type StatusChecked struct {
	Name   string        `json:"name"`
	Status ServiceStatus `json:"status"`
	// Breaker is the circuit breaker state, when the service has one.
	Breaker string `json:"breaker,omitempty"`
}

type ReadinessChecked struct {
	Status    ServiceStatus   `json:"status"`
	Services  []StatusChecked `json:"services"`
	CheckedAt time.Time       `json:"checkedAt"`
}
