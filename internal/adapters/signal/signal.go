package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Setlist/internal/app/gateway"
	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/dkeye/Setlist/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// SessionTokenKey is the cookie-session key holding a stored access token.
const SessionTokenKey = "token"

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	SendBuffer     int
	RateLimit      int
	RateInterval   time.Duration
	AllowedOrigins []string
}

type SignalWSController struct {
	Gateway *gateway.Gateway
	Metrics *metrics.Metrics
	Limiter *RateLimiter

	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(gw *gateway.Gateway, m *metrics.Metrics, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.PongWait <= opts.PingPeriod {
		opts.PongWait = opts.PingPeriod * 10 / 9
	}
	return &SignalWSController{
		Gateway: gw,
		Metrics: m,
		Limiter: NewRateLimiter(opts.RateLimit, opts.RateInterval),
		opts:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when the list is empty. Requests without
// an Origin header come from non-browser clients and are let through.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type WsSignalConn struct {
	id   domain.ConnectionID
	conn *websocket.Conn
	send chan core.Frame

	// fallbackToken is used by join messages that carry no token.
	fallbackToken string

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() domain.ConnectionID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// requestToken finds an access token outside the join message: query
// string, bearer header, then the cookie session.
func requestToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if _, ok := c.Get(sessions.DefaultKey); ok {
		if t, ok := sessions.Default(c).Get(SessionTokenKey).(string); ok {
			return t
		}
	}
	return ""
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")
	token := requestToken(c)

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	conn := &WsSignalConn{
		id:            domain.ConnectionID(uuid.NewString()),
		conn:          ws,
		send:          make(chan core.Frame, ctl.opts.SendBuffer),
		fallbackToken: token,
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("client", client).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Gateway.Registry.BindConn(conn, client, cancel)
	ctl.Metrics.ConnectionOpened()

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}
