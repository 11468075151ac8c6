package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/config"
	"github.com/karimadel/giu-portal-monitor/internal/models"
)

// sectionOrder fixes how the four buckets appear in the message.
var sectionOrder = []struct {
	Category models.ChangeCategory
	Title    string
}{
	{models.CategoryGrades, "Grades Changes"},
	{models.CategoryAttendance, "Attendance Changes"},
	{models.CategoryTranscript, "Transcript Changes"},
	{models.CategoryOther, "Other Changes"},
}

// EmailNotifier sends one multipart (plain + HTML) message per run, with the
// changes grouped into the four categories and per-category counts.
type EmailNotifier struct {
	host       string
	port       int
	address    string
	password   string
	portalLink string
	logger     zerolog.Logger
	send       func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		host:       cfg.SMTPHost,
		port:       cfg.SMTPPort,
		address:    cfg.Address,
		password:   cfg.Password,
		portalLink: cfg.PortalLink,
		logger:     logger,
		send:       smtp.SendMail,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, run models.RunInfo, changes []models.ChangeEvent) error {
	if len(changes) == 0 {
		return nil
	}

	msg, err := n.buildMessage(run, changes)
	if err != nil {
		return fmt.Errorf("failed to build email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	auth := smtp.PlainAuth("", n.address, n.password, n.host)

	if err := n.send(addr, auth, n.address, []string{n.address}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info().
		Int("changes", len(changes)).
		Str("run_id", run.ID).
		Msg("Notification email sent")

	return nil
}

type emailSection struct {
	Title   string
	Changes []string
}

type emailData struct {
	Total      int
	Counts     []int
	Sections   []emailSection
	CheckedAt  string
	PortalLink string
}

func (n *EmailNotifier) buildMessage(run models.RunInfo, changes []models.ChangeEvent) ([]byte, error) {
	data := buildEmailData(run, changes, n.portalLink)
	subject := fmt.Sprintf("GIU Portal Updates - %d Change(s) Detected", data.Total)

	var html bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", n.address)
	fmt.Fprintf(&buf, "To: %s\r\n", n.address)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())

	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	part.Write([]byte(renderText(data)))

	part, err = writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	part.Write(html.Bytes())

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func buildEmailData(run models.RunInfo, changes []models.ChangeEvent, portalLink string) emailData {
	groups := models.GroupByCategory(changes)

	data := emailData{
		Total:      len(changes),
		CheckedAt:  run.CheckedAt.Format("2006-01-02 15:04:05") + " UTC",
		PortalLink: portalLink,
	}

	for _, section := range sectionOrder {
		events := groups[section.Category]
		data.Counts = append(data.Counts, len(events))
		if len(events) == 0 {
			continue
		}

		rendered := make([]string, 0, len(events))
		for _, e := range events {
			rendered = append(rendered, e.Render())
		}
		data.Sections = append(data.Sections, emailSection{
			Title:   fmt.Sprintf("%s (%d)", section.Title, len(events)),
			Changes: rendered,
		})
	}

	return data
}

func renderText(data emailData) string {
	var b strings.Builder

	b.WriteString("GIU PORTAL UPDATES\r\n")
	b.WriteString(strings.Repeat("=", 50) + "\r\n\r\n")
	fmt.Fprintf(&b, "Total Changes Detected: %d\r\n\r\n", data.Total)

	for _, section := range data.Sections {
		fmt.Fprintf(&b, "%s:\r\n", strings.ToUpper(section.Title))
		for i, change := range section.Changes {
			fmt.Fprintf(&b, "  %d. %s\r\n", i+1, change)
		}
		b.WriteString("\r\n")
	}

	fmt.Fprintf(&b, "Checked at: %s\r\n", data.CheckedAt)
	fmt.Fprintf(&b, "Visit: %s\r\n", data.PortalLink)

	return b.String()
}

var htmlTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>GIU Portal Updates</title></head>
<body style="margin:0;padding:0;font-family:Segoe UI,Tahoma,sans-serif;background-color:#f5f5f5;">
  <div style="max-width:600px;margin:20px auto;background-color:#ffffff;border-radius:8px;overflow:hidden;">
    <div style="background-color:#F7931E;color:white;padding:25px;text-align:center;">
      <h1 style="margin:0;font-size:24px;">GIU Portal Updates</h1>
      <p style="margin:8px 0 0 0;">{{.Total}} Change(s) Detected</p>
    </div>
    <div style="padding:25px;">
      {{range .Sections}}
      <div style="margin-bottom:20px;">
        <h3 style="margin:0 0 10px 0;color:#374151;border-bottom:2px solid #e5e7eb;padding-bottom:6px;">{{.Title}}</h3>
        {{range .Changes}}
        <div style="padding:8px 0;border-bottom:1px solid #f1f3f4;color:#374151;font-size:14px;">{{.}}</div>
        {{end}}
      </div>
      {{end}}
    </div>
    <div style="background-color:#f8fafc;padding:20px;text-align:center;color:#6B7280;font-size:12px;">
      <p style="margin:5px 0;">Checked at: {{.CheckedAt}}</p>
      <p style="margin:5px 0;"><a href="{{.PortalLink}}" style="color:#F7931E;">Visit GIU Portal</a></p>
    </div>
  </div>
</body>
</html>
`))
