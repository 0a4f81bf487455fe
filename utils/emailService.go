package utils

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"strings"

	"pfmp/config"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer delivers one HTML email. Send is synchronous so callers can react
// to delivery failures.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewMailer uses SendGrid when an API key is configured, SMTP otherwise.
func NewMailer(cfg *config.Config) Mailer {
	if cfg.SendGridAPIKey != "" {
		return &SendGridMailer{client: sendgrid.NewSendClient(cfg.SendGridAPIKey), from: cfg.EmailSender}
	}
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     cfg.EmailSender,
	}
}

type SendGridMailer struct {
	client *sendgrid.Client
	from   string
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	message := mail.NewSingleEmail(
		mail.NewEmail("PFMP Conventions", m.from),
		subject,
		mail.NewEmail("", to),
		subject,
		htmlBody,
	)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type SMTPMailer struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func (m *SMTPMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	// MIME basics
	msg := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n"
	msg += fmt.Sprintf("From: PFMP Conventions <%s>\r\n", m.from)
	msg += fmt.Sprintf("To: %s\r\n", to)
	msg += fmt.Sprintf("Subject: %s\r\n\r\n", subject)
	msg += htmlBody

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}

	if err := smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, []byte(msg)); err != nil {
		slog.Warn("smtp delivery failed", "to", to, "step", "email.smtp", "error", err)
		return err
	}
	return nil
}

// HTML wrapper shared by every notification
func getEmailTemplate(title string, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; }
			.header { background-color: #000091; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 22px; }
			.content { padding: 40px 30px; color: #161616; line-height: 1.6; }
			.code { text-align: center; font-size: 40px; letter-spacing: 8px; color: #000091; margin: 20px 0; }
			.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header"><h1>Conventions de PFMP</h1></div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">Message automatique, merci de ne pas répondre.</div>
		</div>
	</body>
	</html>
	`, html.EscapeString(title), bodyContent)
}

// OTPEmail renders the code email for a purpose.
func OTPEmail(code string, purposeLabel string, ttlMinutes int) (subject, body string) {
	subject = "Votre code de vérification"
	body = getEmailTemplate(purposeLabel, fmt.Sprintf(`
		<p>Votre code à usage unique est :</p>
		<div class="code">%s</div>
		<p>Il expire dans %d minutes. Ne le communiquez à personne.</p>
	`, html.EscapeString(code), ttlMinutes))
	return subject, body
}

// ReminderEmail renders the nudge sent to the party expected to sign next.
func ReminderEmail(partyName, studentName, companyName, actionURL string) (subject, body string) {
	subject = "Convention de stage en attente de votre signature"
	greeting := "Bonjour,"
	if strings.TrimSpace(partyName) != "" {
		greeting = fmt.Sprintf("Bonjour %s,", html.EscapeString(partyName))
	}
	body = getEmailTemplate("Signature en attente", fmt.Sprintf(`
		<p>%s</p>
		<p>La convention de <strong>%s</strong> chez <strong>%s</strong> attend votre signature.</p>
		<p><a href="%s">Accéder à la convention</a></p>
	`, greeting, html.EscapeString(studentName), html.EscapeString(companyName), html.EscapeString(actionURL)))
	return subject, body
}

// SignedEmail notifies the next signatory that their turn has come.
func SignedEmail(studentName, companyName string, step string) (subject, body string) {
	subject = "Convention de stage : une étape a été signée"
	body = getEmailTemplate("Nouvelle signature", fmt.Sprintf(`
		<p>L'étape <strong>%s</strong> de la convention de <strong>%s</strong> chez <strong>%s</strong> vient d'être signée.</p>
		<p>Vous êtes le prochain signataire.</p>
	`, html.EscapeString(step), html.EscapeString(studentName), html.EscapeString(companyName)))
	return subject, body
}
