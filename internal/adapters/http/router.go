package http

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/dkeye/Setlist/internal/adapters/signal"
	"github.com/dkeye/Setlist/internal/app/gateway"
	"github.com/dkeye/Setlist/internal/app/perform"
	"github.com/dkeye/Setlist/internal/config"
	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/metrics"
	transport "github.com/dkeye/Setlist/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const sessionCookie = "SetlistSessions"

type Deps struct {
	Gateway  *gateway.Gateway
	Sessions *perform.Store
	Setlists transport.SetlistCatalog
	Verifier core.IdentityVerifier
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// RequireToken admits requests carrying a verifiable bearer token, or one
// stored in the cookie session.
func RequireToken(v core.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token, _ = sessions.Default(c).Get(signal.SessionTokenKey).(string)
		}
		user, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			transport.AbortWithError(c, err)
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// putToken stores a verified access token in the cookie session so browser
// clients can open the socket without putting it in the URL.
func putToken(v core.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		user, err := v.Verify(c.Request.Context(), req.Token)
		if err != nil {
			transport.AbortWithError(c, err)
			return
		}
		sess := sessions.Default(c)
		sess.Set(signal.SessionTokenKey, req.Token)
		if err := sess.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func deleteToken(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Delete(signal.SessionTokenKey)
	_ = sess.Save()
	c.Status(http.StatusNoContent)
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionCookie, store))
	r.Use(ClientTokenMiddleware())

	if st, err := os.Stat(cfg.StaticPath); err == nil && st.IsDir() {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "OK",
			"message":     "Server is running",
			"sessions":    d.Sessions.Len(),
			"connections": d.Gateway.Registry.Len(),
		})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(d.Gateway, d.Metrics, signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait(),
		SendBuffer:     cfg.SendBuffer,
		RateLimit:      cfg.RateLimit,
		RateInterval:   cfg.RateInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	api := r.Group("/api")

	api.GET("/ws/perform", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws perform endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.PUT("/session/token", putToken(d.Verifier))
	api.DELETE("/session/token", deleteToken)

	admin := api.Group("", RequireToken(d.Verifier))
	(&transport.SessionHandlers{Sessions: d.Sessions}).Register(admin)
	if d.Setlists != nil {
		(&transport.SetlistHandlers{Setlists: d.Setlists, Sessions: d.Sessions}).Register(admin)
	}

	return r
}
