package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"TicketWatch/internal/config"
	"TicketWatch/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// SMTPSender 基于标准库net/smtp的邮件发送实现
type SMTPSender struct {
	cfg    *config.MailConfig
	logger *logrus.Logger
}

func NewSMTPSender(cfg *config.MailConfig, logger *logrus.Logger) interfaces.MailSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("收件人为空")
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("SMTP发送失败: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("邮件已发送")
	return nil
}
