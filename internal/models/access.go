package models

import "time"

// PaymentStatus is the result of an access-pass lookup on the ledger.
type PaymentStatus struct {
	HasPaid   bool      `json:"hasPaid"`
	PassID    string    `json:"passId,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BlobStatus is the result of a blob existence probe. It is a value, not an
// error: a probe that cannot reach the store reports valid=false.
type BlobStatus struct {
	BlobID string `json:"blobId"`
	Valid  bool   `json:"valid"`
	URL    string `json:"url,omitempty"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AccessDecision is the single decision produced by the access gate.
// AccessGranted is true only when both sub-checks independently passed.
type AccessDecision struct {
	PaymentVerified bool   `json:"paymentVerified"`
	BlobValid       bool   `json:"blobValid"`
	AccessGranted   bool   `json:"accessGranted"`
	PassID          string `json:"passId,omitempty"`
	Error           string `json:"error,omitempty"`
}
