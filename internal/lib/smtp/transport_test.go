package smtp

import (
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/beauty-clinic/internal/config"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTransport_From(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SMTP
		want string
	}{
		{name: "явный отправитель", cfg: config.SMTP{SMTPUser: "login", SMTPFrom: "clinic@mail.test"}, want: "clinic@mail.test"},
		{name: "логин как отправитель", cfg: config.SMTP{SMTPUser: "login@mail.test"}, want: "login@mail.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewTransport(tt.cfg, newNoopLogger()).From())
		})
	}
}

func TestTransport_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	tr := NewTransport(config.SMTP{SMTPHost: "127.0.0.1", SMTPPort: strconv.Itoa(addr.Port)}, newNoopLogger())
	client, err := tr.Connect()
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "smtp.Connect")
}

func TestTransport_ConnectWithoutStartTLS(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("220 fake ESMTP\r\n"))
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			if err != nil || n == 0 {
				return
			}
			line := string(buf[:n])
			switch {
			case len(line) >= 4 && line[:4] == "EHLO":
				_, _ = conn.Write([]byte("250-fake\r\n250 HELP\r\n"))
			case len(line) >= 4 && line[:4] == "QUIT":
				_, _ = conn.Write([]byte("221 bye\r\n"))
				return
			default:
				_, _ = conn.Write([]byte("250 OK\r\n"))
			}
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	tr := NewTransport(config.SMTP{SMTPHost: "127.0.0.1", SMTPPort: strconv.Itoa(port)}, newNoopLogger())
	client, err := tr.Connect()
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "starttls unsupported")
}
