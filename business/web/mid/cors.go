package mid

import (
	"context"
	"net/http"
	"strings"

	"github.com/ardanlabs/ledger/foundation/web"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Origin, Accept, Content-Type, Content-Length, Accept-Encoding"
	corsMaxAge  = "86400"
)

// Cors allows browsers on the listed origins to call the api. The origins
// are comma separated and "*" allows every origin. A request from an origin
// that is not listed is served without any CORS headers.
func Cors(origins string) web.Middleware {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")

			switch {
			case allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			default:
				return handler(ctx, w, r)
			}

			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
			w.Header().Set("Access-Control-Max-Age", corsMaxAge)

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
