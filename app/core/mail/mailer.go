// Package mail delivers approved minutes by email with the generated
// document attached. Delivery goes over implicit TLS on port 465; credentials
// left unset disable the mailer rather than failing the fan-out.
package mail

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"path/filepath"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

type Mailer struct {
	cfg Config
}

func New(cfg Config) *Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	return &Mailer{cfg: cfg}
}

// Enabled reports whether credentials are configured. Callers skip mailing
// when this is false.
func (m *Mailer) Enabled() bool {
	return strings.TrimSpace(m.cfg.Username) != "" && strings.TrimSpace(m.cfg.Password) != ""
}

// Send mails the body with one attachment to the given recipient.
func (m *Mailer) Send(to, subject, body, attachName string, attachment []byte) error {
	if !m.Enabled() {
		return fmt.Errorf("mail: credentials not configured")
	}

	msg, err := m.buildMessage(to, subject, body, attachName, attachment)
	if err != nil {
		return fmt.Errorf("mail: build message: %w", err)
	}

	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: smtp handshake: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("mail: auth: %w", err)
	}
	if err := client.Mail(m.cfg.Username); err != nil {
		return fmt.Errorf("mail: sender rejected: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("mail: recipient rejected: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("mail: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: close data: %w", err)
	}
	return client.Quit()
}

func (m *Mailer) buildMessage(to, subject, body, attachName string, attachment []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.Username)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", encodeSubject(subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	name := filepath.Base(attachName)
	attachHeader := textproto.MIMEHeader{}
	attachHeader.Set("Content-Type", "application/octet-stream")
	attachHeader.Set("Content-Transfer-Encoding", "base64")
	attachHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	attachPart, err := writer.CreatePart(attachHeader)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 0 {
		n := 76
		if len(encoded) < n {
			n = len(encoded)
		}
		if _, err := attachPart.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return nil, err
		}
		encoded = encoded[n:]
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeSubject RFC2047-encodes non-ASCII subjects; minutes titles are
// usually Japanese.
func encodeSubject(subject string) string {
	ascii := true
	for _, r := range subject {
		if r > 127 {
			ascii = false
			break
		}
	}
	if ascii {
		return subject
	}
	return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(subject)) + "?="
}
