package requestdata

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

var requestDataKey = contextKey{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData carries the resolved identity of the caller. UserID is uuid.Nil
// for anonymous requests; SessionID is the opaque client-supplied key used to
// authorize anonymous actions before login. At most one of the two is relied
// upon by any service.
type RequestData struct {
	TokenString string
	UserID      uuid.UUID
	IsAdmin     bool
	SessionID   string
}

// Authenticated reports whether the request carries a logged-in account.
func (rd *RequestData) Authenticated() bool {
	return rd != nil && rd.UserID != uuid.Nil
}
