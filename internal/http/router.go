package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bellcorp/eventboard/internal/auth"
	"github.com/bellcorp/eventboard/internal/cache"
	"github.com/bellcorp/eventboard/internal/config"
	"github.com/bellcorp/eventboard/internal/http/handlers"
	"github.com/bellcorp/eventboard/internal/http/middlewares"
	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/bellcorp/eventboard/internal/queue"
	"github.com/bellcorp/eventboard/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// NewRouter wires repositories, handlers and the middleware chain. The queue
// and prom arguments may be nil (tests, seeder).
func NewRouter(log *slog.Logger, pool *pgxpool.Pool, confirmations *queue.Confirmations, cfg config.Config, prom *observability.Prom) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORS([]string{cfg.ClientURL}))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	r.Use(otelgin.Middleware("eventboard-api"))

	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	// wire up repositories
	eventsRepo := postgres.NewEventsRepo(pool, prom)
	registrationsRepo := postgres.NewRegistrationsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool, prom)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL())
	authMw := middlewares.NewAuthMiddleware(jwtManager)

	listCache := cache.New(10 * time.Second)

	eventsHandler := handlers.NewEventsHandlerWithCache(eventsRepo, listCache)
	registrationsHandler := handlers.NewRegistrationsHandler(registrationsRepo, eventsRepo, confirmationsOrNil(confirmations), prom)
	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager)

	authLimiter := middlewares.NewRateLimiter(10, time.Minute)
	registerLimiter := middlewares.NewRateLimiter(30, time.Minute)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(authLimiter.Middleware(middlewares.KeyByIP))
	authGroup.POST("/signup", authHandler.SignUp)
	authGroup.POST("/login", authHandler.Login)

	events := api.Group("/events")
	events.GET("", eventsHandler.ListEvents)
	events.GET("/:id", eventsHandler.GetEventById)
	events.POST("", authMw.RequireAuth(), eventsHandler.CreateEvent)
	events.PUT("/:id", authMw.RequireAuth(), eventsHandler.UpdateEvent)
	events.DELETE("/:id", authMw.RequireAuth(), eventsHandler.DeleteEvent)

	// ops surface: force the list cache to drop after out-of-band data fixes
	admin := api.Group("/admin")
	admin.Use(authMw.RequireAuth(), authMw.RequireRole("admin"))
	admin.POST("/cache/purge", func(c *gin.Context) {
		listCache.Clear()
		c.JSON(http.StatusOK, gin.H{"message": "cache purged"})
	})

	regs := api.Group("/registrations")
	regs.Use(authMw.RequireAuth())
	regs.Use(registerLimiter.Middleware(middlewares.KeyByUserOrIP))
	regs.GET("/me", registrationsHandler.ListMine)
	regs.GET("/:eventId/registrations", registrationsHandler.ListForEvent)
	regs.POST("/:eventId", registrationsHandler.Register)
	regs.DELETE("/:eventId", registrationsHandler.Cancel)

	return r
}

// confirmationsOrNil keeps a typed-nil *queue.Confirmations from sneaking
// into the handler's interface field.
func confirmationsOrNil(c *queue.Confirmations) handlers.ConfirmationEnqueuer {
	if c == nil {
		return nil
	}
	return c
}
