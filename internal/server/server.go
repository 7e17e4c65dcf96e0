package server

import (
	"context"
	"net/http"

	"bandpay/internal/auth"
	"bandpay/internal/config"
	"bandpay/internal/device"
	"bandpay/internal/engine"
	"bandpay/internal/event"
	"bandpay/internal/notify"
	"bandpay/internal/product"
	"bandpay/internal/transaction"
	"bandpay/internal/user"
	"bandpay/internal/wallet"
	"bandpay/internal/wristband"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	router *gin.Engine
	db     *sqlx.DB
	config *config.Config
	http   *http.Server
}

func New(db *sqlx.DB, cfg *config.Config, incidents *notify.Service) *Server {
	router := gin.Default()
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitClientTTL()))
	}

	deviceRepo := device.NewRepository(db)
	txRepo := transaction.NewRepository(db)

	engineSvc := engine.NewService(
		db,
		event.NewRepository(db),
		wristband.NewRepository(db),
		wallet.NewRepository(db),
		txRepo,
		product.NewRepository(db),
		incidents,
		cfg.ChargePendingTTL(),
		cfg.ReplaceSessionTTL(),
		cfg.MaxCounterJump,
	)

	userHandler := user.NewHandler(db, cfg.JWTSecret)
	eventHandler := event.NewHandler(db)
	deviceHandler := device.NewHandler(db)
	productHandler := product.NewHandler(db)
	wristbandHandler := wristband.NewHandler(db)
	engineHandler := engine.NewHandler(engineSvc, txRepo, incidents)

	public := router.Group("/auth")
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.RefreshToken)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)

	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)
	}

	// POS terminals authenticate with a device key, not a user token.
	pos := router.Group("/pos")
	pos.Use(device.KeyMiddleware(deviceRepo))
	{
		pos.POST("/topup", engineHandler.TopUp)
		pos.POST("/balance", engineHandler.BalanceCheck)
		pos.POST("/charge/prepare", engineHandler.ChargePrepare)
		pos.POST("/charge/commit", engineHandler.ChargeCommit)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/events", eventHandler.CreateEvent)
		admin.GET("/events", eventHandler.ListEvents)
		admin.GET("/events/:eventID", eventHandler.GetEvent)
		admin.POST("/events/:eventID/close", eventHandler.CloseEvent)

		admin.POST("/events/:eventID/devices", deviceHandler.RegisterDevice)
		admin.POST("/events/:eventID/devices/:deviceID/booth", deviceHandler.AssignBooth)
		admin.POST("/events/:eventID/devices/:deviceID/mode", deviceHandler.SetMode)
		admin.POST("/events/:eventID/devices/:deviceID/disable", deviceHandler.DisableDevice)
		admin.POST("/events/:eventID/booths", deviceHandler.CreateBooth)
		admin.GET("/events/:eventID/booths", deviceHandler.ListBooths)

		admin.POST("/events/:eventID/products", productHandler.CreateProduct)
		admin.GET("/events/:eventID/products", productHandler.ListProducts)
		admin.POST("/events/:eventID/products/:productID/active", productHandler.SetActive)

		admin.POST("/events/:eventID/wristbands", wristbandHandler.Provision)
		admin.GET("/events/:eventID/wristbands", wristbandHandler.ListWristbands)
		admin.GET("/events/:eventID/wristbands/:wristbandID", wristbandHandler.GetWristband)

		admin.GET("/events/:eventID/transactions", engineHandler.ListTransactions)
		admin.POST("/events/:eventID/refund", engineHandler.Refund)
		admin.GET("/incidents", engineHandler.ListIncidents)
	}

	// Recovery operations are open to booth operators so a failed tag
	// can be handled at the booth without calling an organizer over.
	recovery := router.Group("/admin/events/:eventID")
	recovery.Use(authMiddleware, auth.RequireRole(auth.RoleOperator))
	{
		recovery.POST("/resync", engineHandler.Resync)
		recovery.POST("/invalidate", engineHandler.Invalidate)
		recovery.POST("/replace", engineHandler.Replace)
		recovery.POST("/replace-sessions", engineHandler.StartReplaceSession)
		recovery.GET("/replace-sessions/:sessionID", engineHandler.GetReplaceSession)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Device-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
