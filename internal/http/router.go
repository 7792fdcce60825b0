package http

import (
	"log/slog"

	"github.com/geocoder89/dinutri/internal/config"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/http/handlers"
	"github.com/geocoder89/dinutri/internal/http/middlewares"
	"github.com/geocoder89/dinutri/internal/observability"
	"github.com/geocoder89/dinutri/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps is everything the router wires into handlers.
type Deps struct {
	Log      *slog.Logger
	Cfg      config.Config
	Version  string
	Store    handlers.Pinger
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	// Limiter counts requests in Redis; nil keeps the count in process.
	Limiter middlewares.WindowCounter

	Auth          *service.AuthService
	Patients      *service.PatientService
	Prescriptions *service.PrescriptionService
	Invites       *service.InviteService
}

type Router struct {
	Engine *gin.Engine
	Health *handlers.HealthHandler
}

func NewRouter(d Deps) *Router {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// the limiter keys on ClientIP, so forwarded headers only count from known proxies
	var proxies []string
	if len(d.Cfg.TrustedProxies) > 0 {
		proxies = d.Cfg.TrustedProxies
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		d.Log.Warn("invalid TRUSTED_PROXIES, ignoring forwarded headers", "err", err)
		_ = r.SetTrustedProxies(nil)
	}

	// middleware

	r.Use(gin.CustomRecovery(handlers.Recovered(d.Log)))
	r.Use(otelgin.Middleware(handlers.ServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders(d.Cfg.Env))
	if len(d.Cfg.CORSOrigins) > 0 {
		r.Use(middlewares.CORS(d.Cfg.CORSOrigins))
	}
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.MaxBodyBytes(d.Cfg.MaxBodyBytes))

	// probes and docs live outside /api
	h := handlers.NewHealthHandler(d.Store, d.Version)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(rateLimit(d))
	// login also takes a form post
	api.Use(middlewares.RequireJSON("/api/auth/login"))

	api.GET("", h.Root)
	api.GET("/", h.Root)
	api.GET("/health", h.Health)

	authMW := middlewares.NewAuthMiddleware(d.Auth)
	authH := handlers.NewAuthHandler(d.Auth)
	patientsH := handlers.NewPatientsHandler(d.Patients)
	prescriptionsH := handlers.NewPrescriptionsHandler(d.Prescriptions)
	invitesH := handlers.NewInvitesHandler(d.Invites)

	api.POST("/auth/login", authH.Login)

	// the token is the credential on these two
	api.GET("/invites/:token", invitesH.ResolveInvite)
	api.POST("/invites/:token/accept", invitesH.AcceptInvite)

	authed := api.Group("")
	authed.Use(authMW.RequireAuth())
	{
		authed.GET("/me", authH.Me)

		authed.GET("/patients/:id", patientsH.GetPatient)
		authed.GET("/patients/:id/latest", prescriptionsH.LatestPublished)
		authed.GET("/prescriptions/:id", prescriptionsH.GetPrescription)
	}

	pro := authed.Group("")
	pro.Use(authMW.RequireRole(user.RoleNutritionist))
	{
		pro.POST("/patients", patientsH.CreatePatient)
		pro.GET("/patients", patientsH.ListPatients)
		pro.PUT("/patients/:id", patientsH.UpdatePatient)
		pro.GET("/patients/:id/prescriptions", prescriptionsH.ListPatientPrescriptions)

		pro.POST("/prescriptions", prescriptionsH.CreatePrescription)
		pro.GET("/prescriptions", prescriptionsH.ListPrescriptions)
		pro.PUT("/prescriptions/:id", prescriptionsH.UpdatePrescription)
		pro.POST("/prescriptions/:id/publish", prescriptionsH.PublishPrescription)
		pro.POST("/prescriptions/:id/duplicate", prescriptionsH.DuplicatePrescription)

		pro.POST("/invites", invitesH.CreateInvite)
		pro.GET("/invites", invitesH.ListInvites)
		// gin wants one wildcard name per segment, so the invite id rides in :token
		pro.POST("/invites/:token/revoke", invitesH.RevokeInvite)
	}

	r.NoRoute(handlers.NoRoute)
	r.NoMethod(handlers.NoMethod)

	return &Router{Engine: r, Health: h}
}

// rateLimit runs before authentication, so the client key is the IP.
func rateLimit(d Deps) gin.HandlerFunc {
	window := d.Cfg.RateLimitWindow()

	if d.Cfg.RateLimitPerWindow <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	if d.Limiter != nil {
		return middlewares.NewRedisRateLimiter(d.Limiter, d.Cfg.RateLimitPerWindow, window, d.Log).
			RateLimiterMiddleware(middlewares.KeyByIP)
	}
	return middlewares.NewRateLimiter(d.Cfg.RateLimitPerWindow, window).
		RateLimiterMiddleware(middlewares.KeyByIP)
}
