package publisher

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryosukesatoh/weekly-report/internal/logging"
	"github.com/ryosukesatoh/weekly-report/internal/summarizer"
)

const (
	implicitTLSPort    = 465
	defaultSMTPTimeout = 30 * time.Second
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string
	Port     int
	Password string
	From     string
	To       string
	Subject  string
	// CAFile replaces the system roots when set.
	CAFile string
	// Highlight lists keywords whose sentences are emphasised.
	Highlight []string
	// ImplicitTLS forces TLS from the first byte. Port 465 always uses it.
	ImplicitTLS bool
	Timeout     time.Duration
}

// SendError reports a failure to deliver mail, as opposed to a failure to
// produce the content.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "email: " + e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }

// EmailPublisher sends the digest as a multipart text and HTML email via SMTP.
type EmailPublisher struct {
	cfg       EmailConfig
	tlsConfig *tls.Config
	logger    *slog.Logger
	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
	now       func() time.Time
}

func NewEmailPublisher(cfg EmailConfig, logger *slog.Logger) (*EmailPublisher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("email: read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("email: no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	return &EmailPublisher{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		logger:    logging.OrDefault(logger),
		dial:      dialer.DialContext,
		now:       time.Now,
	}, nil
}

func (p *EmailPublisher) Publish(ctx context.Context, digest *summarizer.Digest) error {
	if digest.Empty() {
		return &SendError{Err: errors.New("refusing to send an empty summary")}
	}

	msg, err := p.Message(digest)
	if err != nil {
		return &SendError{Err: err}
	}

	if err := p.send(ctx, msg); err != nil {
		return &SendError{Err: err}
	}

	p.logger.Info("email sent", "to", p.cfg.To, "bytes", len(msg))
	return nil
}

// Message renders the full RFC 5322 message.
func (p *EmailPublisher) Message(digest *summarizer.Digest) ([]byte, error) {
	view := newReportView(p.cfg.Subject, digest, p.cfg.Highlight)
	text, err := renderText(view)
	if err != nil {
		return nil, err
	}
	html, err := renderHTML(view)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := writePart(mw, "text/plain; charset=UTF-8", text); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=UTF-8", html); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var msg bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&msg, "%s: %s\r\n", k, v) }
	header("From", p.cfg.From)
	header("To", p.cfg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", p.cfg.Subject))
	header("Date", p.now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(p.cfg.From)))
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, content string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(content)); err != nil {
		return fmt.Errorf("write part: %w", err)
	}
	return qp.Close()
}

func domainOf(addr string) string {
	if a, err := mail.ParseAddress(addr); err == nil {
		addr = a.Address
	}
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

func (p *EmailPublisher) implicitTLS() bool {
	return p.cfg.ImplicitTLS || p.cfg.Port == implicitTLSPort
}

func (p *EmailPublisher) send(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))

	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	deadline := p.now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set deadline: %w", err)
	}

	if p.implicitTLS() {
		tlsConn := tls.Client(conn, p.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("tls handshake with %s: %w", addr, err)
		}
		conn = tlsConn
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting from %s: %w", addr, err)
	}
	defer c.Close()

	if !p.implicitTLS() {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(p.tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		} else {
			p.logger.Warn("smtp server does not offer STARTTLS", "addr", addr)
		}
	}

	from := p.cfg.From
	if a, err := mail.ParseAddress(from); err == nil {
		from = a.Address
	}
	to := p.cfg.To
	if a, err := mail.ParseAddress(to); err == nil {
		to = a.Address
	}

	if ok, _ := c.Extension("AUTH"); !ok {
		return fmt.Errorf("smtp server %s does not support AUTH", addr)
	}
	if err := c.Auth(smtp.PlainAuth("", from, p.cfg.Password, p.cfg.Host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}
