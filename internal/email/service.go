package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
	}
}

// SendLowStockAlert notifies recipients that a product fell below the threshold
func (s *Service) SendLowStockAlert(to []string, alert LowStockAlert) error {
	if len(to) == 0 {
		return nil
	}
	subject := fmt.Sprintf("[Low stock] %s has %d left", alert.displayName(), alert.Quantity)
	return s.deliver(to, subject, BuildLowStockAlertBody(alert))
}

func (s *Service) deliver(to []string, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, strings.Join(to, ", "), subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.send(addr, nil, s.from, to, []byte(msg))
}
