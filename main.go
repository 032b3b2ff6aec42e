package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "parc-backend/docs"
	"parc-backend/internal/asset_mgmt/assignments"
	"parc-backend/internal/asset_mgmt/tokens"
	"parc-backend/internal/platform/auth"
	"parc-backend/internal/platform/config"
	"parc-backend/internal/platform/db"
	"parc-backend/internal/platform/logs"
	"parc-backend/internal/platform/mailer"
	"parc-backend/internal/platform/middleware"
	"parc-backend/internal/platform/scheduler"
	"parc-backend/internal/platform/tenant"
)

// @title       Parc API
// @version     1.0
// @BasePath    /api
func main() {
	cfg := config.MustLoad()

	if err := logs.Init(logs.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: cfg.Logging.File}); err != nil {
		panic(err)
	}
	log := logs.Logger
	log.WithField("mode", cfg.Mode).Info("starting")

	registry, err := connectTenants(cfg)
	if err != nil {
		log.WithError(err).Fatal("tenant databases")
	}
	defer registry.Close()

	mail, err := newMailer(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("mail templates")
	}

	codec := tokens.NewCodec([]byte(cfg.Assignment.TokenSecret), cfg.Assignment.TokenTTL, nil)
	svc := assignments.NewService(registry, codec, mail, cfg.Assignment.PublicBaseURL, log)
	reclaimer := assignments.NewReclaimer(registry, log)
	authSvc := auth.NewService(registry, []byte(cfg.Auth.JWTSecret), cfg.Auth.TTL)

	loc, err := time.LoadLocation(cfg.Assignment.Timezone)
	if err != nil {
		log.WithError(err).Fatal("timezone")
	}
	sched := scheduler.New(loc, log)
	// SweepTenant logs its own summary.
	if err := sched.Add("assignment-expiry", cfg.Assignment.ReclaimCron, func(ctx context.Context) {
		reclaimer.SweepAll(ctx)
	}); err != nil {
		log.WithError(err).Fatal("scheduler")
	}

	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.AccessLog(log), middleware.Recoverer(log))
	_ = r.SetTrustedProxies(nil)

	if !cfg.IsRelease() {
		// CORS (dev only)
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
			ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowCredentials: true,
		}))
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/healthz", func(c *gin.Context) {
		status := gin.H{}
		healthy := true
		for name, err := range registry.Ping(c.Request.Context()) {
			if err != nil {
				healthy = false
				status[name] = err.Error()
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	h := assignments.NewHandler(svc, reclaimer, log, !cfg.IsRelease())

	api := r.Group("/api")
	auth.RegisterPublicRoutes(api, authSvc)
	assignments.RegisterPublicRoutes(api, h)

	private := api.Group("/")
	private.Use(auth.RequireAuth(authSvc.Secret()))
	auth.RegisterRoutes(private, authSvc)
	assignments.RegisterRoutes(private, h)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Address, cfg.Server.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()
	sched.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := sched.Stop(ctx); err != nil {
		log.WithError(err).Warn("scheduler did not stop in time")
	}
}

func connectTenants(cfg *config.Config) (*tenant.Registry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbs := make(map[string]*sql.DB, len(cfg.Tenants))
	for name, dc := range cfg.Tenants {
		conn, err := db.Connect(ctx, dc)
		if err != nil {
			for _, open := range dbs {
				_ = open.Close()
			}
			return nil, err
		}
		logs.Logger.WithFields(logrus.Fields{"tenant": name, "dbname": dc.DBName}).Info("connected to DB")
		dbs[name] = conn
	}
	reg, err := tenant.NewRegistry(dbs)
	if err != nil {
		for _, open := range dbs {
			_ = open.Close()
		}
		return nil, err
	}
	return reg, nil
}

// newMailer returns the SMTP relay when one is configured and a logging gateway otherwise.
func newMailer(cfg *config.Config, log logrus.FieldLogger) (mailer.Gateway, error) {
	catalog, err := mailer.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	if cfg.Mail.Host == "" {
		log.Warn("mail.host not set, notifications are only logged")
		return mailer.NewLog(catalog, log), nil
	}
	return mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	}, catalog), nil
}
