package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cashier-settlement-go/internal/store"
)

const headerSignature = "X-Cashier-Signature"

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature admits requests whose body is signed with secret.
func VerifySignature(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: unreadable body", store.ErrBadRequest))
				return
			}

			got := r.Header.Get(headerSignature)
			want := Sign(key, body)
			if len(key) == 0 || !strings.HasPrefix(got, "sha256=") || !hmac.Equal([]byte(got), []byte(want)) {
				writeError(w, r, fmt.Errorf("%w: bad webhook signature", store.ErrUnauthenticated))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
