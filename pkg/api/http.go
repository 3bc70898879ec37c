// Package api assembles the HTTP surface: versioned REST routes, the
// widget websocket bridge and the live snapshot stream.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"assistdb/pkg/api/handlers"
	"assistdb/pkg/auth"
	"assistdb/pkg/bridge"
)

// Router builds the /v1 route tree. Chat, embed, tour and admin routes
// require a verified actor identity; the widget surface authenticates
// via session tokens minted at bootstrap and is mounted without the
// identity middleware.
func Router(d *handlers.Deps, ws *bridge.Handler) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	// widget routes first: path prefix match wins before the catch-all
	// signed subrouter sees the request
	widget := v1.PathPrefix("/widget").Subrouter()
	handlers.RegisterWidget(widget, d)
	if ws != nil {
		widget.Handle("/ws", ws).Methods(http.MethodGet)
	}

	signed := v1.NewRoute().Subrouter()
	signed.Use(auth.RequireSignedActor)
	handlers.RegisterConversations(signed, d)
	handlers.RegisterMessages(signed, d)
	handlers.RegisterEmbeds(signed, d)
	handlers.RegisterTours(signed, d)
	handlers.RegisterAdmin(signed, d)
	handlers.RegisterSign(signed, d)

	return r
}
