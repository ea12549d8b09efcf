package main // entry point of the complaint portal web server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/civicdesk/complaint-portal/internal/config"
	"github.com/civicdesk/complaint-portal/internal/events"
	"github.com/civicdesk/complaint-portal/internal/handler"
	"github.com/civicdesk/complaint-portal/internal/logger"
	"github.com/civicdesk/complaint-portal/internal/metrics"
	"github.com/civicdesk/complaint-portal/internal/middleware"
	"github.com/civicdesk/complaint-portal/internal/notify"
	"github.com/civicdesk/complaint-portal/internal/queue"
	"github.com/civicdesk/complaint-portal/internal/repository"
	"github.com/civicdesk/complaint-portal/internal/router"
	"github.com/civicdesk/complaint-portal/internal/service"
	"github.com/civicdesk/complaint-portal/internal/utils"
	"github.com/civicdesk/complaint-portal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// Mail transport.  Redis and the broker are only touched when selected.
	deps := notify.Deps{RedisList: cfg.Redis.MailList}
	if cfg.Mail.DevBackend == "redis" {
		if rdb := config.NewRedisClient(cfg.Redis); rdb != nil {
			deps.Redis = rdb
			defer func() { _ = rdb.Close() }()
		} else {
			lg.Warn("redis unreachable", zap.String("addr", cfg.Redis.Addr))
		}
	}
	if cfg.Mail.Queue == "amqp" {
		deps.Publisher = queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.MailQueue, lg.Named("rabbitmq"))
	}
	transport := notify.NewTransport(cfg.Mail, deps, lg.Named("mail"))
	mailer := notify.NewMailer(transport, notify.MailerOptions{
		Sender:  cfg.Mail.Sender,
		Admins:  cfg.Mail.AdminEmails,
		BaseURL: cfg.Server.BaseURL,
		TTL:     cfg.Token.TTL,
	}, lg.Named("mail"))

	var pub events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		if p, err := events.NewNATSPublisher(cfg.NATS.URL, lg.Named("events")); err != nil {
			lg.Warn("domain events disabled", zap.Error(err))
		} else {
			pub = p
		}
	}
	defer pub.Close()

	m := metrics.New()
	repo := repository.NewComplaintRepo(utils.SecureGenerator{})
	svc := service.NewComplaintService(repo, mailer, pub, m, service.Options{
		TTL:         cfg.Token.TTL,
		SendTimeout: cfg.Mail.SendTimeout,
	}, lg.Named("complaints"))

	renderer, err := handler.NewRenderer(web.Templates, "index.html", "verify.html")
	if err != nil {
		lg.Fatal("templates", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(lg.Named("http")))

	// only the inline transports depend on SMTP settings
	var missing []string
	if cfg.Mail.Queue != "amqp" {
		missing = cfg.Mail.MissingSMTP()
	}

	router.RegisterRoutes(e, repo.Len)
	router.RegisterComplaints(e, &handler.ComplaintHandler{
		Svc:         svc,
		MissingSMTP: missing,
		Debug:       cfg.Debug(),
		Logger:      lg.Named("http"),
	}, cfg.Server.SecretKey)
	if cfg.Metrics.Enabled {
		router.RegisterMetrics(e, m.Handler())
	}

	go func() {
		lg.Info("listening", zap.String("addr", cfg.Addr()), zap.String("env", cfg.Env))
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	if err := svc.Close(shutdownCtx); err != nil {
		lg.Warn("pending notifications abandoned", zap.Error(err))
	}
	lg.Info("stopped")
}
