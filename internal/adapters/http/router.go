package http

import (
	"context"
	"net/http"

	"github.com/dkeye/CallRelay/internal/adapters/signal"
	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/config"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const cookieName = "RelaySessions"

// SetupRouter wires the REST surface, the watch socket, health and metrics.
// gatherer may be nil, in which case /metrics is not served.
func SetupRouter(ctx context.Context, cfg *config.Config, svc *app.SignalingService, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(cookieName, store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": svc.Store.Len()})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	h := NewHandler(svc)
	watch := signal.NewWatchController(svc, cfg.PingPeriod, cfg.ReadLimit)

	api := r.Group("/api/webrtc", PrincipalMiddleware())

	submit := []gin.HandlerFunc{}
	if cfg.SubmitRateLimit > 0 {
		rl := NewRateLimiter(cfg.SubmitRateLimit, cfg.SubmitRateWindow)
		go rl.PruneEvery(ctx, cfg.SubmitRateWindow)
		submit = append(submit, rl.Middleware())
	}
	with := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, submit...), fn)
	}

	api.POST("/session", with(h.CreateSession)...)
	api.GET("/session", h.FindSession)
	api.GET("/session/:sessionId", h.GetSession)
	api.POST("/offer", with(h.SubmitOffer)...)
	api.GET("/offer/:sessionId", h.FetchOffer)
	api.POST("/answer", with(h.SubmitAnswer)...)
	api.GET("/answer/:sessionId", h.FetchAnswer)
	api.POST("/ice", with(h.SubmitCandidate)...)
	api.GET("/ice/:sessionId", h.FetchCandidates)
	api.POST("/active/:sessionId", h.MarkActive)
	api.POST("/end/:sessionId", h.EndSession)

	api.GET("/watch/:sessionId", func(c *gin.Context) {
		pr, _ := PrincipalFrom(c)
		sid := domain.SessionID(c.Param("sessionId"))
		log.Debug().Str("module", "adapters.http").Str("sid", string(sid)).Msg("ws watch endpoint hit")
		if err := watch.Serve(ctx, c.Writer, c.Request, pr, sid); err != nil {
			writeError(c, err)
		}
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).
		Int("submit_rate_limit", cfg.SubmitRateLimit).Msg("router setup")
	return r
}
