package cashierclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"
)

// APIError is a non-2xx response. It unwraps to the store sentinel of its
// wire code so callers can use errors.Is across the network boundary.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func newAPIError(status int, body []byte) *APIError {
	var resp models.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Code == "" {
		return &APIError{Status: status, Code: store.CodeInternal, Message: http.StatusText(status)}
	}
	return &APIError{Status: status, Code: resp.Error.Code, Message: resp.Error.Message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cashier API %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

func (e *APIError) Unwrap() error {
	return store.ErrorForCode(e.Code)
}

// Sign returns the X-Cashier-Signature value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
