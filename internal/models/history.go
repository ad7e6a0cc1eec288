package models

import "time"

// Request history status values.
const (
	RequestStatusSuccess = "success"
	RequestStatusError   = "error"
)

// RequestHistory is one immutable audit record of a resource invocation.
// It is written for every invocation, whether or not it was charged.
type RequestHistory struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	RequestType    string    `json:"request_type"`
	RequestData    *string   `json:"request_data,omitempty"`
	ResponseData   *string   `json:"response_data,omitempty"`
	Status         string    `json:"status"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	ProcessingTime *int64    `json:"processing_time,omitempty"` // milliseconds
	CreatedAt      time.Time `json:"created_at"`
}
