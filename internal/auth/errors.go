package auth

import (
	"fmt"

	"cashier-settlement-go/internal/store"
)

var errMissingBearer = fmt.Errorf("%w: missing bearer token", store.ErrUnauthenticated)
