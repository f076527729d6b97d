package api

import "time"

// Transaction statuses reported by the partner API.
const (
	StatusCompleted = "COMPLETED"
	StatusPending   = "PENDING"
	StatusFailed    = "FAILED"
)

// Supplier is a mobile carrier that accepts top-ups.
type Supplier struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RechargeRequest submits a top-up.
type RechargeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Amount      int    `json:"amount"`
	SupplierID  string `json:"supplierId"`
}

// RechargeResponse is the partner's acknowledgement of a top-up.
type RechargeResponse struct {
	ID          string    `json:"id"`
	Ticket      string    `json:"ticket"`
	Status      string    `json:"status"`
	PhoneNumber string    `json:"phoneNumber"`
	Amount      int       `json:"amount"`
	SupplierID  string    `json:"supplierId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Transaction is one historical top-up.
type Transaction struct {
	ID           string    `json:"id"`
	PhoneNumber  string    `json:"phoneNumber"`
	Amount       int       `json:"amount"`
	Status       string    `json:"status"`
	SupplierID   string    `json:"supplierId"`
	SupplierName string    `json:"supplierName"`
	CreatedAt    time.Time `json:"createdAt"`
	Ticket       string    `json:"ticket"`
}

type authTokenResponse struct {
	Token string `json:"token"`
}
