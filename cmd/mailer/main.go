package main // mail worker: drains the broker queue and delivers over SMTP

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/civicdesk/complaint-portal/internal/config"
	"github.com/civicdesk/complaint-portal/internal/logger"
	"github.com/civicdesk/complaint-portal/internal/notify"
	"github.com/civicdesk/complaint-portal/internal/queue"
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

	if missing := cfg.Mail.MissingSMTP(); len(missing) > 0 {
		lg.Fatal("mail worker needs SMTP settings", zap.String("missing", strings.Join(missing, ",")))
	}
	smtpT := &notify.SMTPTransport{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUsername,
		Password: cfg.Mail.SMTPPassword,
		UseTLS:   cfg.Mail.SMTPUseTLS,
		Timeout:  cfg.Mail.SendTimeout,
	}

	consumer := queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.MailQueue, deliverWith(smtpT, cfg.Mail.SendTimeout, lg), lg.Named("mail-consumer"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.Info("mail worker started", zap.String("queue", cfg.AMQP.MailQueue))
	_ = consumer.Run(ctx)
	lg.Info("mail worker stopped")
}

// deliverWith decodes a queued notify.Message and sends it through t.  Each
// delivery gets at most timeout so a stuck relay cannot wedge the consumer.
func deliverWith(t notify.Transport, timeout time.Duration, lg *zap.Logger) queue.HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var msg notify.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := t.Send(ctx, msg); err != nil {
			return fmt.Errorf("send %s: %w", msg.Name, err)
		}
		lg.Info("mail delivered", zap.String("message", msg.Name), zap.Strings("to", msg.To))
		return nil
	}
}
