// Package server implements the Taskwire server: the idempotent change
// application endpoint, the paginated task listings, and the health probe
// clients use as their connectivity signal.
package server

import (
	"github.com/gin-gonic/gin"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

// Page size policy, matching the client's initial render needs: a big
// first page of upcoming tasks, smaller follow-ups.
const (
	upcomingFirstPageSize = 50
	upcomingPageSize      = 20
	completedPageSize     = 10
)

// Server is the Taskwire HTTP server.
type Server struct {
	store  *Store
	auth   Authenticator
	router *gin.Engine
}

// NewServer wires the router. All task routes require bearer auth; the
// health probe is open so clients can sample connectivity before
// authenticating.
func NewServer(store *Store, auth Authenticator) *Server {
	router := gin.Default()

	s := &Server{
		store:  store,
		auth:   auth,
		router: router,
	}

	router.GET("/api/health", s.handleHealth)

	api := router.Group("/api", requireAuth(auth))
	{
		api.POST("/sync", s.handleSync)
		api.GET("/tasks/upcoming", s.handleListUpcoming)
		api.GET("/tasks/completed", s.handleListCompleted)
	}

	return s
}

// Run starts the server on addr.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}
