// internal/calls/routes.go

package calls

import "github.com/gorilla/mux"

// RegisterRoutes registers the call routes. Guest endpoints are public;
// everything else sits behind authMiddleware.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware mux.MiddlewareFunc) {
	// Guest endpoints - authorized by the guest token, not a session
	public := router.PathPrefix("/api/v1/calls").Subrouter()
	public.HandleFunc("/{id:[0-9]+}/guest-access", handler.RequestGuestAccess).Methods("POST")
	public.HandleFunc("/{id:[0-9]+}/guest-leave", handler.LeaveGuest).Methods("POST")

	api := router.PathPrefix("/api/v1/calls").Subrouter()
	api.Use(authMiddleware)

	api.HandleFunc("", handler.CreateCall).Methods("POST")
	api.HandleFunc("/{id:[0-9]+}", handler.GetCall).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}/join", handler.JoinCall).Methods("POST")
	api.HandleFunc("/{id:[0-9]+}/leave", handler.LeaveCall).Methods("POST")
	api.HandleFunc("/{id:[0-9]+}/end", handler.EndCall).Methods("POST")
}
