// Package gateway defines the outbound delivery contract and how its failures are reported.
package gateway

import (
	"context"
	"fmt"
	"net/http"
)

// Result mirrors what a gateway answered. Status 0 means the request never got a response.
type Result struct {
	OK       bool   `json:"ok"`
	Status   int    `json:"status"`
	BodyText string `json:"bodyText"`
}

// Sender delivers a text message to a phone number. Implementations never return a Go error
// for delivery problems; those are carried in Result so callers can classify them.
type Sender interface {
	SendText(ctx context.Context, phone, text string) Result
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, phone, text string) Result

func (f SenderFunc) SendText(ctx context.Context, phone, text string) Result {
	return f(ctx, phone, text)
}

// NetworkError builds the Result for a request that failed below HTTP.
func NetworkError(err error) Result {
	return Result{OK: false, Status: 0, BodyText: fmt.Sprintf("<network error: %v>", err)}
}

// Category is the user-facing reading of a failed send.
type Category string

const (
	CategoryNone          Category = ""
	CategoryInvalidNumber Category = "invalid_number"
	CategoryNotConnected  Category = "not_connected"
	CategoryTimeout       Category = "timeout"
	CategoryNetwork       Category = "network"
	CategoryGeneric       Category = "generic"
)

// StatusTimeout is the synthetic status used when the gateway call exceeded its deadline.
const StatusTimeout = http.StatusGatewayTimeout

// Classify maps a Result to a Category. Successful results are CategoryNone.
func Classify(r Result) Category {
	if r.OK {
		return CategoryNone
	}
	switch {
	case r.Status == 0:
		return CategoryNetwork
	case r.Status == http.StatusNotFound:
		return CategoryInvalidNumber
	case r.Status == StatusTimeout:
		return CategoryTimeout
	case r.Status == http.StatusUnauthorized, r.Status == http.StatusForbidden,
		r.Status == http.StatusConflict, r.Status >= 500:
		return CategoryNotConnected
	default:
		return CategoryGeneric
	}
}

// Message is the operator notification for a category.
func (c Category) Message() string {
	switch c {
	case CategoryInvalidNumber:
		return "number has no WhatsApp or is invalid"
	case CategoryNotConnected:
		return "WhatsApp instance not connected"
	case CategoryTimeout:
		return "gateway timed out"
	case CategoryNetwork:
		return "could not reach the gateway"
	case CategoryGeneric:
		return "gateway rejected the message"
	default:
		return ""
	}
}

// Unconfigured is a Sender for deployments without a gateway. It answers every send with an
// error result so persistence still happens.
type Unconfigured struct{}

func (Unconfigured) SendText(context.Context, string, string) Result {
	return Result{OK: false, Status: http.StatusServiceUnavailable, BodyText: "gateway not configured"}
}
