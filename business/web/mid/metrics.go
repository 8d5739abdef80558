package mid

import (
	"context"
	"net/http"

	"github.com/powledger/node/business/sys/metrics"
	"github.com/powledger/node/foundation/web"
)

// Metrics updates program counters.
func Metrics(m *metrics.Web) web.Middleware {

	// This is the actual middleware function to be executed.
	mw := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request and errors counters.
			m.AddRequest()
			if err != nil {
				m.AddError()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return mw
}
