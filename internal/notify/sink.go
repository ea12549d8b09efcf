package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civicdesk/complaint-portal/internal/model"
)

// ConsoleTransport prints messages instead of sending them.  Development only.
type ConsoleTransport struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
}

func NewConsoleTransport(out io.Writer, logger *zap.Logger) *ConsoleTransport {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleTransport{out: out, logger: logger}
}

func (t *ConsoleTransport) Send(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := fmt.Fprintf(t.out, "=== DEV EMAIL (console) ===\nTo: %s\nSubject: %s\n%s\n=== END DEV EMAIL ===\n",
		strings.Join(msg.To, ", "), msg.Subject, msg.Body)
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	t.logger.Debug("dev email printed", zap.String("message", msg.Name))
	return nil
}

// FileTransport writes each message to <Dir>/<msg.Name>.txt.
type FileTransport struct {
	Dir string
}

func (t *FileTransport) Send(_ context.Context, msg Message) error {
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return fmt.Errorf("file sink: mkdir %s: %w", t.Dir, err)
	}
	path := t.Path(msg.Name)
	content := fmt.Sprintf("To: %s\nSubject: %s\n\n%s\n", strings.Join(msg.To, ", "), msg.Subject, msg.Body)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("file sink: write %s: %w", path, err)
	}
	return nil
}

// Path is where a message named name ends up.
func (t *FileTransport) Path(name string) string {
	return filepath.Join(t.Dir, filepath.Base(name)+".txt")
}

// FallbackTransport tries Primary and, when it fails, stores the message and
// the error through Spill so a developer can still read it.  A successful
// spill counts as delivered.
type FallbackTransport struct {
	Primary Transport
	Spill   *FileTransport
	logger  *zap.Logger
}

func NewFallbackTransport(primary Transport, spill *FileTransport, logger *zap.Logger) *FallbackTransport {
	return &FallbackTransport{Primary: primary, Spill: spill, logger: logger}
}

func (t *FallbackTransport) Send(ctx context.Context, msg Message) error {
	err := t.Primary.Send(ctx, msg)
	if err == nil {
		return nil
	}
	t.logger.Error("primary transport failed, spilling to file", zap.Error(err), zap.String("message", msg.Name))

	spilled := msg
	spilled.Name = msg.Name + "_error"
	spilled.Body = msg.Body + "\n\nERROR: " + err.Error()
	if serr := t.Spill.Send(ctx, spilled); serr != nil {
		return fmt.Errorf("%w (spill failed: %v)", err, serr)
	}
	t.logger.Info("saved failed email", zap.String("path", t.Spill.Path(spilled.Name)))
	return nil
}

// listPusher is the slice of the redis client the sink uses.
type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisTransport appends JSON encoded messages to a Redis list, acting as a
// mail catcher that tests and tools can drain with LPOP.
type RedisTransport struct {
	client listPusher
	key    string
}

func NewRedisTransport(client listPusher, key string) *RedisTransport {
	return &RedisTransport{client: client, key: key}
}

func (t *RedisTransport) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis sink: marshal: %w", err)
	}
	if err := t.client.RPush(ctx, t.key, body).Err(); err != nil {
		return fmt.Errorf("redis sink: rpush %s: %w", t.key, err)
	}
	return nil
}

// unconfiguredTransport stands in when no transport can be built.  Every
// send fails with model.ErrTransportUnavailable.
type unconfiguredTransport struct {
	missing []string
}

func (t unconfiguredTransport) Send(context.Context, Message) error {
	return fmt.Errorf("%w: missing %s", model.ErrTransportUnavailable, strings.Join(t.missing, ","))
}
