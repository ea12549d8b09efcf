package notify

import (
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civicdesk/complaint-portal/internal/config"
)

// Deps are the optional collaborators some transports need.  Nil fields
// disable the corresponding transport.
type Deps struct {
	Redis     *redis.Client
	RedisList string
	Publisher MailPublisher
	Stdout    io.Writer
}

// NewTransport picks the transport once at startup:
//
//  1. MAIL_QUEUE=amqp with a publisher: the broker.
//  2. complete SMTP settings: the relay, spilling failures to files when
//     DEV_EMAIL_BACKEND=file.
//  3. DEV_EMAIL_BACKEND console, file or redis: that sink.
//  4. otherwise a transport that always reports ErrTransportUnavailable.
func NewTransport(cfg config.MailConfig, deps Deps, logger *zap.Logger) Transport {
	if cfg.Queue == "amqp" && deps.Publisher != nil {
		logger.Info("mail transport selected", zap.String("transport", "amqp"))
		return NewQueueTransport(deps.Publisher)
	}

	missing := cfg.MissingSMTP()
	if len(missing) == 0 {
		smtpT := &SMTPTransport{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			UseTLS:   cfg.SMTPUseTLS,
			Timeout:  cfg.SendTimeout,
		}
		if cfg.DevBackend == "file" {
			logger.Info("mail transport selected", zap.String("transport", "smtp+file"))
			return NewFallbackTransport(smtpT, &FileTransport{Dir: cfg.OutputDir}, logger)
		}
		logger.Info("mail transport selected", zap.String("transport", "smtp"), zap.String("host", cfg.SMTPHost))
		return smtpT
	}

	switch cfg.DevBackend {
	case "console":
		logger.Info("mail transport selected", zap.String("transport", "console"))
		return NewConsoleTransport(deps.Stdout, logger)
	case "file":
		logger.Info("mail transport selected", zap.String("transport", "file"), zap.String("dir", cfg.OutputDir))
		return &FileTransport{Dir: cfg.OutputDir}
	case "redis":
		if deps.Redis != nil {
			logger.Info("mail transport selected", zap.String("transport", "redis"))
			return NewRedisTransport(deps.Redis, deps.RedisList)
		}
		logger.Warn("redis mail sink requested but redis is unreachable, using console")
		return NewConsoleTransport(deps.Stdout, logger)
	}

	logger.Warn("SMTP not configured, mail will not be sent", zap.Strings("missing", missing))
	return unconfiguredTransport{missing: missing}
}
