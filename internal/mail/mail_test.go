package mail

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phonestore/internal/config"
)

func TestNew_DisabledWithoutHost(t *testing.T) {
	s := New(config.SMTPConfig{})
	assert.False(t, s.Enabled())
	assert.Error(t, s.Send(context.Background(), "a@b.c", "s", "b"))
}

// fakeServer speaks just enough SMTP for one message and returns the DATA.
func fakeServer(t *testing.T, conn net.Conn, got chan<- string) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
	write("220 fake ESMTP")
	var data strings.Builder
	inData := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			got <- data.String()
			return
		}
		if inData {
			if line == ".\r\n" {
				inData = false
				write("250 queued")
				continue
			}
			data.WriteString(line)
			continue
		}
		switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250 fake")
		case strings.HasPrefix(cmd, "DATA"):
			inData = true
			write("354 go ahead")
		case strings.HasPrefix(cmd, "QUIT"):
			write("221 bye")
			got <- data.String()
			return
		default:
			write("250 ok")
		}
	}
}

func TestSMTP_Send(t *testing.T) {
	client, server := net.Pipe()
	got := make(chan string, 1)
	go fakeServer(t, server, got)

	s := &SMTP{
		cfg:  config.SMTPConfig{Host: "mail.test", Port: 465, User: "shop@phonestore.test"},
		dial: func(context.Context, string, string) (net.Conn, error) { return client, nil },
	}
	require.NoError(t, s.Send(context.Background(), "ann@x.io", "Your code", "Code: 123456\nThanks"))

	msg := <-got
	assert.Contains(t, msg, "Subject: Your code")
	assert.Contains(t, msg, "Code: 123456\r\n")
}
