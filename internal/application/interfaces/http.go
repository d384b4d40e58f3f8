package interfaces

import "net/http"

// HTTPHandler is what the transport layer exposes to the server wiring.
type HTTPHandler interface {
	http.Handler
}
