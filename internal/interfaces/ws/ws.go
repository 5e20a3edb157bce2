// Package ws wires the WebSocket fan-out gateway's HTTP upgrade route onto
// a gin.Engine.
package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"serverstf/internal/application/hub"
	"serverstf/internal/domain/status"
	"serverstf/internal/infrastructure/cacheredis"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server owns the gin engine serving the WebSocket fan-out route.
type Server struct {
	cache    *cacheredis.StateCache
	registry *hub.Hub
	resolver status.LocationResolver
	log      *zap.Logger
}

// New builds a Server. resolver may be nil, in which case no location data
// is ever attached to outgoing status messages.
func New(cache *cacheredis.StateCache, resolver status.LocationResolver, log *zap.Logger) *Server {
	return &Server{
		cache:    cache,
		registry: hub.NewHub(log),
		resolver: resolver,
		log:      log.Named("ws"),
	}
}

// Engine builds a gin.Engine with the single WebSocket route mounted at
// "/". Any other path is dropped by gin's default NoRoute handling.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/", s.handleConnection)
	return engine
}

func (s *Server) handleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}

	client := hub.New(conn, s.cache, s.resolver, s.log)
	s.registry.Register(client)
	defer s.registry.Unregister(client)

	client.Run(c.Request.Context())
}

// ConnectionCount returns the number of currently connected clients.
func (s *Server) ConnectionCount() int {
	return s.registry.Count()
}
