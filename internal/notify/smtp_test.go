package notify

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay is a minimal in-process SMTP server.  It records the envelope
// and the DATA section of every message it accepts.
type fakeRelay struct {
	offerSTARTTLS bool
	silent        bool // accept connections but never greet

	mu    sync.Mutex
	auth  []string
	from  []string
	rcpt  []string
	data  []string
	conns []net.Conn
}

func (r *fakeRelay) start(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			r.mu.Lock()
			r.conns = append(r.conns, c)
			r.mu.Unlock()
			if !r.silent {
				go r.serve(c)
			}
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, c := range r.conns {
			_ = c.Close()
		}
	})
	return ln.Addr().(*net.TCPAddr).Port
}

func (r *fakeRelay) serve(c net.Conn) {
	defer c.Close()
	tp := textproto.NewConn(c)
	_ = tp.PrintfLine("220 fake.relay ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			_ = tp.PrintfLine("250-fake.relay")
			if r.offerSTARTTLS {
				_ = tp.PrintfLine("250-STARTTLS")
			}
			_ = tp.PrintfLine("250 AUTH PLAIN")
		case strings.HasPrefix(cmd, "AUTH"):
			r.record(&r.auth, line)
			_ = tp.PrintfLine("235 2.7.0 authenticated")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			r.record(&r.from, line[len("MAIL FROM:"):])
			_ = tp.PrintfLine("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			r.record(&r.rcpt, line[len("RCPT TO:"):])
			_ = tp.PrintfLine("250 ok")
		case cmd == "DATA":
			_ = tp.PrintfLine("354 go ahead")
			lines, err := tp.ReadDotLines()
			if err != nil {
				return
			}
			r.record(&r.data, strings.Join(lines, "\n"))
			_ = tp.PrintfLine("250 queued")
		case cmd == "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

func (r *fakeRelay) record(dst *[]string, v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*dst = append(*dst, v)
}

func relayTransport(port int, useTLS bool) *SMTPTransport {
	// 127.0.0.1 lets PlainAuth send credentials without TLS
	return &SMTPTransport{Host: "127.0.0.1", Port: port, Username: "mailer", Password: "secret", UseTLS: useTLS, Timeout: time.Second}
}

func TestSMTPTransport_Send(t *testing.T) {
	relay := &fakeRelay{}
	tr := relayTransport(relay.start(t), false)

	msg := Message{
		Name:    "admin_REF-AB12CD34",
		From:    "noreply@city.example",
		To:      []string{"ops@city.example", "mayor@city.example"},
		Subject: "New complaint submitted: REF-AB12CD34",
		Body:    "Issue:\nBroken streetlight",
	}
	require.NoError(t, tr.Send(context.Background(), msg))

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.Len(t, relay.auth, 1)
	assert.True(t, strings.HasPrefix(relay.auth[0], "AUTH PLAIN "))
	assert.Equal(t, []string{"<noreply@city.example>"}, relay.from)
	assert.Equal(t, []string{"<ops@city.example>", "<mayor@city.example>"}, relay.rcpt)
	require.Len(t, relay.data, 1)
	assert.Contains(t, relay.data[0], "Subject: New complaint submitted: REF-AB12CD34")
	assert.Contains(t, relay.data[0], "To: ops@city.example, mayor@city.example")
	assert.Contains(t, relay.data[0], "Broken streetlight")
}

func TestSMTPTransport_RequiresSTARTTLS(t *testing.T) {
	relay := &fakeRelay{offerSTARTTLS: false}
	tr := relayTransport(relay.start(t), true)

	err := tr.Send(context.Background(), sample)
	assert.ErrorContains(t, err, "does not offer STARTTLS")

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.Empty(t, relay.auth, "credentials must not go out in clear text")
}

func TestSMTPTransport_SilentRelayTimesOut(t *testing.T) {
	relay := &fakeRelay{silent: true}
	port := relay.start(t)

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		tr   *SMTPTransport
	}{
		{
			name: "transport timeout without ctx deadline",
			ctx:  func() (context.Context, context.CancelFunc) { return context.Background(), func() {} },
			tr:   &SMTPTransport{Host: "127.0.0.1", Port: port, Timeout: 200 * time.Millisecond},
		},
		{
			name: "ctx deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 200*time.Millisecond)
			},
			tr: &SMTPTransport{Host: "127.0.0.1", Port: port, Timeout: time.Hour},
		},
		{
			name: "ctx cancelled",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(200*time.Millisecond, cancel)
				return ctx, cancel
			},
			tr: &SMTPTransport{Host: "127.0.0.1", Port: port, Timeout: time.Hour},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- tt.tr.Send(ctx, sample) }()
			select {
			case err := <-done:
				assert.ErrorContains(t, err, "smtp: handshake")
			case <-time.After(5 * time.Second):
				t.Fatal("Send still blocked on a silent relay")
			}
		})
	}
}

func TestSMTPTransport_ImplicitTLSOnlyOn465(t *testing.T) {
	assert.True(t, (&SMTPTransport{Port: 465}).implicitTLS())
	assert.False(t, (&SMTPTransport{Port: 587}).implicitTLS())
	assert.False(t, (&SMTPTransport{Port: 25}).implicitTLS())
}

func TestSMTPTransport_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultSMTPTimeout, (&SMTPTransport{}).timeout())
	assert.Equal(t, time.Second, (&SMTPTransport{Timeout: time.Second}).timeout())
}
