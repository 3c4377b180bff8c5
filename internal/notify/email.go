package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

const emailMaxEntries = 10

// EmailSettings configures SMTP delivery
type EmailSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Email sends an HTML summary over SMTP, upgrading with STARTTLS when the
// server offers it
type Email struct {
	settings EmailSettings
	now      func() time.Time
}

// NewEmail creates an email notifier
func NewEmail(settings EmailSettings) *Email {
	return &Email{settings: settings, now: time.Now}
}

func (e *Email) Name() string { return "email" }

var emailTemplate = template.Must(template.New("email").Parse(`<html>
<body style="font-family: Arial, sans-serif;">
  <h2>{{.Headline}}</h2>
  <table style="margin: 20px 0;">
    <tr><td><strong>Case Number:</strong></td><td>{{.CaseNumber}}</td></tr>
    <tr><td><strong>Court:</strong></td><td>{{.Court}}</td></tr>
    <tr><td><strong>Case Name:</strong></td><td>{{.CaseName}}</td></tr>
  </table>
  <h3>New Docket Entries ({{.Count}})</h3>
  <table style="width: 100%; border-collapse: collapse;">
    <tr style="background-color: #f0f0f0;">
      <th style="padding: 8px; text-align: left;">Entry #</th>
      <th style="padding: 8px; text-align: left;">Date Filed</th>
      <th style="padding: 8px; text-align: left;">Description</th>
    </tr>
{{- range .Entries}}
    <tr>
      <td style="padding: 8px; border-bottom: 1px solid #ddd;">{{.Number}}</td>
      <td style="padding: 8px; border-bottom: 1px solid #ddd;">{{.Filed}}</td>
      <td style="padding: 8px; border-bottom: 1px solid #ddd;">{{.Description}}</td>
    </tr>
{{- end}}
  </table>
{{- if .More}}
  <p><em>... and {{.More}} more entries</em></p>
{{- end}}
  <p style="margin-top: 20px;">
    <a href="{{.DocketURL}}" style="background-color: #0066CC; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">View on PACER</a>
  </p>
  <hr style="margin-top: 30px;">
  <p style="font-size: 12px; color: #666;">
    This is an automated notification from PACER Monitor.
    You are receiving this because you have notifications enabled for this case.
  </p>
</body>
</html>
`))

type emailEntry struct {
	Number      int
	Filed       string
	Description string
}

type emailData struct {
	Headline   string
	CaseNumber string
	Court      string
	CaseName   string
	Count      int
	Entries    []emailEntry
	More       int
	DocketURL  string
}

// Subject is the mail subject for a case update
func Subject(c model.Summary) string {
	return "PACER Alert: New activity in " + c.CaseNumber
}

// message renders the full RFC 5322 message
func (e *Email) message(c model.Summary, entries []model.DocketEntry) ([]byte, error) {
	data := emailData{
		Headline:   headline(),
		CaseNumber: c.CaseNumber,
		Court:      strings.ToUpper(c.CourtID),
		CaseName:   c.Name,
		Count:      len(entries),
		DocketURL:  c.DocketURL(),
	}
	if data.CaseName == "" {
		data.CaseName = "N/A"
	}
	for _, entry := range entries[:min(len(entries), emailMaxEntries)] {
		data.Entries = append(data.Entries, emailEntry{Number: entry.Number, Filed: filed(entry), Description: entry.Description})
	}
	data.More = max(len(entries)-emailMaxEntries, 0)

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.settings.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.settings.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", Subject(c)))
	fmt.Fprintf(&msg, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.Write(bytes.ReplaceAll(body.Bytes(), []byte("\n"), []byte("\r\n")))

	return msg.Bytes(), nil
}

func (e *Email) Send(ctx context.Context, c model.Summary, entries []model.DocketEntry) error {
	msg, err := e.message(c, entries)
	if err != nil {
		return err
	}
	return e.deliver(ctx, msg)
}

func (e *Email) deliver(ctx context.Context, msg []byte) error {
	s := e.settings
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))

	dialer := net.Dialer{Timeout: defaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range s.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return client.Quit()
}
