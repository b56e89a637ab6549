package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultSendGridHost = "https://api.sendgrid.com"
	sendGridMailPath    = "/v3/mail/send"
	defaultSenderName   = "Marketplace"
)

// Email описывает одно письмо покупателю.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer отправляет письма.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SendGridMailer отправляет письма через SendGrid v3 API.
type SendGridMailer struct {
	apiKey     string
	host       string
	from       string
	senderName string
}

// SendGridOption настраивает SendGridMailer.
type SendGridOption func(*SendGridMailer)

// WithSendGridHost переопределяет адрес API (используется в тестах).
func WithSendGridHost(host string) SendGridOption {
	return func(m *SendGridMailer) {
		if strings.TrimSpace(host) != "" {
			m.host = strings.TrimRight(host, "/")
		}
	}
}

// WithSenderName задаёт отображаемое имя отправителя.
func WithSenderName(name string) SendGridOption {
	return func(m *SendGridMailer) {
		if strings.TrimSpace(name) != "" {
			m.senderName = name
		}
	}
}

// NewSendGridMailer создаёт SendGridMailer. apiKey и from обязательны.
func NewSendGridMailer(apiKey, from string, opts ...SendGridOption) (*SendGridMailer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is empty")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("from address is empty")
	}

	m := &SendGridMailer{
		apiKey:     apiKey,
		host:       defaultSendGridHost,
		from:       from,
		senderName: defaultSenderName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Send отправляет письмо; ответ со статусом >= 400 считается ошибкой.
func (m *SendGridMailer) Send(ctx context.Context, email Email) error {
	if strings.TrimSpace(email.To) == "" {
		return fmt.Errorf("to address is empty")
	}

	message := mail.NewSingleEmail(
		mail.NewEmail(m.senderName, m.from),
		email.Subject,
		mail.NewEmail("", email.To),
		email.Body,
		fmt.Sprintf("<pre>%s</pre>", html.EscapeString(email.Body)),
	)

	request := sendgrid.GetRequest(m.apiKey, sendGridMailPath, m.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d body=%s", response.StatusCode, response.Body)
	}
	return nil
}

var _ Mailer = (*SendGridMailer)(nil)
