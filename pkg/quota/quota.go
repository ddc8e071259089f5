// Package quota exposes Folio's per-client daily accounting for embedding
// in other HTTP services.
package quota

import (
	"net/http"

	"github.com/SmitUplenchwar2687/Folio/internal/identity"
	internalquota "github.com/SmitUplenchwar2687/Folio/internal/quota"
	"github.com/SmitUplenchwar2687/Folio/pkg/clock"
	"github.com/SmitUplenchwar2687/Folio/pkg/storage"
)

const (
	DefaultLimit        = internalquota.DefaultLimit
	DefaultRetentionTTL = internalquota.DefaultRetentionTTL
)

var (
	ErrUnidentified  = internalquota.ErrUnidentified
	ErrQuotaExceeded = internalquota.ErrQuotaExceeded
)

type (
	Accountant    = internalquota.Accountant
	Options       = internalquota.Options
	State         = internalquota.State
	ExceededError = internalquota.ExceededError
	Event         = internalquota.Event
)

// Client identifies a caller by IP and optional user token.
type Client = identity.Client

// DefaultOptions returns the production defaults against c.
func DefaultOptions(c clock.Clock) Options {
	return internalquota.DefaultOptions(c)
}

// New creates an Accountant over store.
func New(store storage.Store, opts Options) (*Accountant, error) {
	return internalquota.New(store, opts)
}

// ClientFromRequest resolves the caller of r from its proxy headers.
func ClientFromRequest(r *http.Request) Client {
	return identity.FromRequest(r)
}
