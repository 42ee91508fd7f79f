package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusexchange/points/internal/api/handler"
	"github.com/campusexchange/points/internal/api/middleware"
	"github.com/campusexchange/points/internal/authz"
	"github.com/campusexchange/points/internal/config"
	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/idempotency"
	"github.com/campusexchange/points/internal/repository"
	"github.com/campusexchange/points/internal/service"
	"github.com/campusexchange/points/internal/ws"
	"github.com/jmoiron/sqlx"
)

// RouterDeps bundles every dependency needed to build the router. Populated
// once in main() and passed to SetupRouter.
type RouterDeps struct {
	DB       *sqlx.DB
	Cfg      *config.Config
	Resolver *authz.Resolver
	Wrap     *idempotency.Wrapper
	Users    *repository.UserRepository

	AuthSvc  *service.AuthService
	OfferSvc *service.OfferService
	BetSvc   *service.BetService
	AdminSvc *service.AdminService
	GroupSvc *service.GroupService

	Hub *ws.Hub
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(deps.Cfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics emission itself is out of scope; the route is kept on the
	// stable surface as a cheap stub so monitoring configured against it
	// gets 200s rather than 404s.
	r.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, "")
	})

	// ── Handlers ───────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(deps.AuthSvc)
	meH := handler.NewMeHandler(deps.Users, deps.BetSvc, deps.GroupSvc)
	offerH := handler.NewOfferHandler(deps.DB, deps.Wrap, deps.OfferSvc)
	betH := handler.NewBetHandler(deps.DB, deps.Wrap, deps.BetSvc)
	adminH := handler.NewAdminHandler(deps.DB, deps.Wrap, deps.AdminSvc, deps.BetSvc)
	groupH := handler.NewGroupHandler(deps.GroupSvc)

	authMW := middleware.Auth(deps.Resolver)
	adminAccessMW := middleware.RequirePermission(domain.PermAdminAccess)
	adminSuperMW := middleware.RequirePermission(domain.PermAdminSuper)

	authRL := middleware.RateLimitMiddleware(10) // 10 req/s per IP for auth endpoints
	marketRL := middleware.RateLimitMiddleware(30)

	api := r.Group("/api")
	{
		// ── Auth (public, strict rate limit) ──────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/register", authH.Register)
			auth.POST("/login", authH.Login)
			auth.POST("/refresh", authH.Refresh)
		}

		// ── Public profile lookup ─────────────────────────────────────────
		api.GET("/profiles/:id", meH.GetProfile)

		// ── Odds read-path (public): snapshot over REST, stream over WS ───
		if deps.Hub != nil {
			api.GET("/odds", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"ok": true, "data": deps.Hub.Snapshot()})
			})
			r.GET("/ws/odds", func(c *gin.Context) {
				deps.Hub.ServeWs(c.Writer, c.Request)
			})
		}

		// ── Authenticated routes ──────────────────────────────────────────
		authed := api.Group("")
		authed.Use(authMW)
		{
			me := authed.Group("/me")
			{
				me.GET("/stats", meH.Stats)
				me.GET("/bets", meH.Bets)
				me.GET("/groups", meH.Groups)
				me.PATCH("/profile", meH.UpdateProfile)
			}
			authed.GET("/users/:id", meH.GetUser)

			groups := authed.Group("/groups")
			{
				groups.GET("", groupH.List)
				groups.GET("/:id", groupH.Get)
			}

			offers := authed.Group("/offers")
			offers.Use(marketRL)
			{
				offers.POST("", offerH.Create)
				offers.GET("", offerH.List)
				offers.GET("/:id", offerH.Get)
				offers.POST("/:id/accept", offerH.Accept)
				offers.GET("/:id/reviews", offerH.Reviews)
				offers.POST("/:id/reviews", offerH.CreateReview)
				offers.GET("/:id/acceptances", offerH.Acceptances)
			}

			bets := authed.Group("/bets")
			bets.Use(marketRL)
			{
				bets.POST("", betH.Create)
				bets.GET("", betH.List)
				bets.GET("/:id", betH.Get)
				bets.POST("/:id/buy", betH.Buy)
				bets.POST("/:id/sell", betH.Sell)
				bets.GET("/:id/positions", betH.Positions)
			}

			// ── Admin (admin.access, admin.super for role changes) ─────────
			admin := authed.Group("/admin")
			admin.Use(adminAccessMW)
			{
				admin.POST("/users/:id/credit", adminH.Credit)
				admin.POST("/users/:id/debit", adminH.Debit)
				admin.POST("/users/:id/ban", adminH.Ban)
				admin.POST("/users/:id/unban", adminH.Unban)
				admin.POST("/users/:id/reset-password", adminH.ResetPassword)
				admin.GET("/users", adminH.Users)
				admin.GET("/users/banned", adminH.BannedUsers)
				admin.GET("/users/:id/devices", adminH.Devices)
				admin.GET("/users/:id/sessions", adminH.Sessions)
				admin.GET("/users/:id/logs", adminH.UserLogs)
				admin.DELETE("/devices/:deviceId", adminH.RevokeDevice)
				admin.DELETE("/sessions/:sessionId", adminH.RevokeSession)
				admin.GET("/logs", adminH.AllLogs)
				admin.GET("/fees/summary", adminH.FeesSummary)

				admin.GET("/bets/pending-resolution", adminH.PendingResolution)
				admin.POST("/bets/:id/resolve", adminH.ResolveBet)
				admin.DELETE("/bets/:id", adminH.CancelBet)

				admin.POST("/users/:id/promote", adminSuperMW, adminH.Promote)
				admin.POST("/users/:id/demote", adminSuperMW, adminH.Demote)

				admin.POST("/groups", groupH.Create)
				admin.POST("/groups/:id/members", groupH.AddMembers)
				admin.DELETE("/groups/:id/members", groupH.RemoveMembers)
			}
		}
	}

	return r
}

// ── CORS helper ────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured
// origins (§6's CORS_ORIGINS, comma-separated).
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(cfg.Server.CORSOrigins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key, X-Device-Label")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
