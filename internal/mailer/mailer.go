// Package mailer delivers verification messages to invited users.
package mailer

import (
	_ "embed"
	"html/template"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

var (
	logger = log.With().Str("component", "mailer").Logger()
)

//go:embed templates/verification_email.html
var verificationTemplateFile string

var verificationTemplate = template.Must(template.New("verificationEmail").Parse(verificationTemplateFile))

const verificationSubject = "Verify Your Account"

// Message carries everything a verification email must state: who it
// greets, the literal token, and how long the token stays valid.
type Message struct {
	Name       string
	Token      string
	ExpiryDays int
}

// Sender delivers one verification message. A failed delivery concerns
// that recipient only.
type Sender interface {
	SendVerification(email string, msg Message) error
}

// DeliveryResult is one recipient's slot in a batch send.
type DeliveryResult struct {
	Email string `json:"email"`
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// SendBatch attempts delivery to every recipient; one failure never
// stops the rest. The per-recipient results come back in input order.
func SendBatch(s Sender, recipients []Recipient) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(recipients))
	for _, rcpt := range recipients {
		res := DeliveryResult{Email: rcpt.Email, Sent: true}
		if err := s.SendVerification(rcpt.Email, rcpt.Message); err != nil {
			res.Sent = false
			res.Error = err.Error()
			logger.Error().Err(err).Str("email", rcpt.Email).Msg("Verification email failed")
		}
		results = append(results, res)
	}
	return results
}

// Recipient pairs an address with its rendered message inputs.
type Recipient struct {
	Email   string
	Message Message
}

// RenderBody produces the HTML body for a message.
func RenderBody(msg Message) (string, error) {
	var b strings.Builder
	if err := verificationTemplate.Execute(&b, msg); err != nil {
		return "", err
	}
	return b.String(), nil
}

// SMTPConfig is the mail server connection.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SMTP sends through a real mail server via gomail.
type SMTP struct {
	cfg SMTPConfig
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg}
}

func (s *SMTP) SendVerification(email string, msg Message) error {
	body, err := RenderBody(msg)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", email)
	m.SetHeader("Subject", verificationSubject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password)
	return d.DialAndSend(m)
}

// NoMail drops every message, for environments without a mail server.
type NoMail struct{}

func (NoMail) SendVerification(email string, msg Message) error {
	logger.Info().Str("email", email).Msg("Mail disabled, dropping verification message")
	return nil
}
