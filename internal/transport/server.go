package transport

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/VigLinat/studiohub/internal"
	"github.com/VigLinat/studiohub/internal/hub"
	"github.com/VigLinat/studiohub/internal/metrics"
	"github.com/VigLinat/studiohub/internal/protocol"
)

type Deps struct {
	Hub             *hub.Hub
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	AllowedOrigins  []string
	MaxMessageBytes int64
	// PongWait bounds how long a silent peer is kept; zero means 60s.
	PongWait time.Duration
}

// Server accepts websocket sessions and hands them to the hub.
type Server struct {
	hub             *hub.Hub
	metrics         *metrics.Metrics
	upgrader        ws.Upgrader
	maxMessageBytes int64
	alive           keepalive
}

func NewServer(deps Deps) *Server {
	s := &Server{
		hub:             deps.Hub,
		metrics:         deps.Metrics,
		maxMessageBytes: deps.MaxMessageBytes,
		alive:           newKeepalive(deps.PongWait),
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = 64 * 1024
	}
	s.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(deps.AllowedOrigins),
	}
	return s
}

// NewRouter wires the websocket endpoint with health, stats and metrics.
func NewRouter(deps Deps) *gin.Engine {
	s := NewServer(deps)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())

	r.GET("/ws", s.HandleWS)
	r.GET("/healthz", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	api := r.Group("/api")
	api.GET("/stats", s.Stats)
	api.GET("/rooms", s.Rooms)
	return r
}

// HandleWS upgrades the request and runs the session until it ends.
func (s *Server) HandleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		internal.MyWarn("Upgrade failed for %s: %s", c.Request.RemoteAddr, err)
		return
	}
	internal.MyLog("Received connection: %s", conn.RemoteAddr().String())

	client := NewClient(conn, s.hub, hub.NewConnID())
	client.onDrop = s.metrics.FrameRejected
	client.alive = s.alive

	hello, err := protocol.Encode(protocol.TypeConnected, protocol.Connected{ConnectionID: client.id})
	if err == nil {
		client.outbox.Push(hello)
	}
	if err := s.hub.Register(client.id, client.outbox); err != nil {
		internal.MyWarn("Rejecting %s: %s", conn.RemoteAddr().String(), err)
		conn.Close()
		return
	}

	go client.Write()
	client.Read(s.maxMessageBytes)
	internal.MyLog("Connection %s closed", client.id)
}

func (s *Server) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Registry().Stats())
}

func (s *Server) Rooms(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Registry().Rooms())
}

// RequestID tags every request with an X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetHeader("X-Request-ID") == "" {
			ctx.Request.Header.Set("X-Request-ID", uuid.NewString())
		}
		ctx.Header("X-Request-ID", ctx.GetHeader("X-Request-ID"))
		ctx.Next()
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	hosts := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		hosts[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
