package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/qs3c/installment_billing/config"
)

type Service struct {
	cfg *config.EmailConfig
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// ReminderLine 提醒邮件中的一行应付明细
type ReminderLine struct {
	Label   string
	DueDate string
	Amount  string
}

// Reminder 催缴提醒邮件内容
type Reminder struct {
	Organization string
	ParentName   string
	Total        string
	Lines        []ReminderLine
	LinkURL      string
	Sequence     int
	MaxReminders int
}

var reminderTemplate = template.Must(template.New("reminder").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">Payment reminder</h2>
        <p>Hi {{.ParentName}},</p>
        <p>This is a reminder that the following payments for {{.Organization}} are outstanding:</p>
        <table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
            {{- range .Lines}}
            <tr>
                <td style="padding: 6px 0;">{{.Label}}</td>
                <td style="padding: 6px 0;">due {{.DueDate}}</td>
                <td style="padding: 6px 0; text-align: right;">{{.Amount}}</td>
            </tr>
            {{- end}}
            <tr>
                <td colspan="2" style="padding: 6px 0; font-weight: bold;">Total due</td>
                <td style="padding: 6px 0; text-align: right; font-weight: bold;">{{.Total}}</td>
            </tr>
        </table>
        {{- if .LinkURL}}
        <div style="text-align: center; margin: 30px 0;">
            <a href="{{.LinkURL}}" style="background-color: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Pay {{.Total}}</a>
        </div>
        {{- else}}
        <p>Please contact us to arrange payment.</p>
        {{- end}}
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">Reminder {{.Sequence}} of {{.MaxReminders}}. Reply to this email if you have already paid.</p>
    </div>
</body>
</html>
`))

// RenderReminder 生成提醒邮件的标题和 HTML 正文
func RenderReminder(r *Reminder) (string, string, error) {
	subject := fmt.Sprintf("Payment reminder: %s due", r.Total)
	if r.Organization != "" {
		subject = fmt.Sprintf("%s - %s", subject, r.Organization)
	}

	var buf bytes.Buffer
	if err := reminderTemplate.Execute(&buf, r); err != nil {
		return "", "", fmt.Errorf("render reminder: %w", err)
	}
	return subject, buf.String(), nil
}

// SendHTML 发送 HTML 邮件
func (s *Service) SendHTML(to, subject, body string) error {
	if s.cfg == nil || s.cfg.SMTPHost == "" {
		return fmt.Errorf("smtp is not configured")
	}

	msg := buildMessage(s.cfg.From, to, subject, body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg)
}

func buildMessage(from, to, subject, body string) []byte {
	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}
