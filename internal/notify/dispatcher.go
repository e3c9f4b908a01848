// Package notify delivers lifecycle notifications. Dispatchers know how to
// reach a recipient; the Notifier decides who hears about which event.
package notify

import (
	"campusfix/backend/internal/localization"
	"campusfix/backend/internal/models"
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Kind selects the template of a notification.
type Kind string

const (
	KindComplaintSubmitted Kind = "complaint_submitted"
	KindAdminNewComplaint  Kind = "admin_new_complaint"
	KindStatusUpdated      Kind = "status_updated"
	KindComplaintAssigned  Kind = "complaint_assigned"
)

func (k Kind) subjectKey() string { return string(k) + ".subject" }
func (k Kind) bodyKey() string    { return string(k) + ".body" }

// Recipient is who a notification is addressed to.
type Recipient struct {
	ID    string
	Name  string
	Email string
	Role  models.Role
}

func RecipientOf(p models.Profile) Recipient {
	return Recipient{ID: p.ID, Name: p.Name, Email: p.Email, Role: p.Role}
}

// Dispatcher delivers one notification. Callers treat every error as
// non-fatal.
type Dispatcher interface {
	Notify(ctx context.Context, to Recipient, kind Kind, payload map[string]string) error
}

func render(loc *localization.Localizer, to Recipient, kind Kind, payload map[string]string) (subject, body string) {
	params := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		params[k] = v
	}
	params["to_name"] = to.Name
	return loc.Format(localization.DefaultLang, kind.subjectKey(), params),
		loc.Format(localization.DefaultLang, kind.bodyKey(), params)
}

// MailSender is satisfied by *gomail.Dialer.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailDispatcher sends plain-text mail over SMTP.
type EmailDispatcher struct {
	sender MailSender
	from   string
	loc    *localization.Localizer
}

func NewEmailDispatcher(host string, port int, user, pass, from string, loc *localization.Localizer) *EmailDispatcher {
	return NewEmailDispatcherWithSender(gomail.NewDialer(host, port, user, pass), from, loc)
}

func NewEmailDispatcherWithSender(sender MailSender, from string, loc *localization.Localizer) *EmailDispatcher {
	return &EmailDispatcher{sender: sender, from: from, loc: loc}
}

// ErrNoAddress is returned for recipients without an email address.
var ErrNoAddress = errors.New("recipient has no email address")

func (d *EmailDispatcher) Notify(_ context.Context, to Recipient, kind Kind, payload map[string]string) error {
	if to.Email == "" {
		return ErrNoAddress
	}
	subject, body := render(d.loc, to, kind, payload)

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetAddressHeader("To", to.Email, to.Name)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := d.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s to %s: %w", kind, to.Email, err)
	}
	return nil
}

// BotSender is satisfied by *tgbotapi.BotAPI.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramDispatcher posts every notification into one operations chat.
// The recipient only shapes the text.
type TelegramDispatcher struct {
	bot    BotSender
	chatID int64
	loc    *localization.Localizer
}

func NewTelegramDispatcher(token string, chatID int64, loc *localization.Localizer) (*TelegramDispatcher, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramDispatcherWithBot(bot, chatID, loc), nil
}

func NewTelegramDispatcherWithBot(bot BotSender, chatID int64, loc *localization.Localizer) *TelegramDispatcher {
	return &TelegramDispatcher{bot: bot, chatID: chatID, loc: loc}
}

func (d *TelegramDispatcher) Notify(_ context.Context, to Recipient, kind Kind, payload map[string]string) error {
	subject, body := render(d.loc, to, kind, payload)
	prefix := d.loc.GetString(localization.DefaultLang, "ops.prefix")

	msg := tgbotapi.NewMessage(d.chatID, fmt.Sprintf("%s %s\n%s", prefix, subject, body))
	msg.LinkPreviewOptions.IsDisabled = true
	if _, err := d.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram %s: %w", kind, err)
	}
	return nil
}

// LogDispatcher only logs. It stands in when no mail server is configured.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Notify(_ context.Context, to Recipient, kind Kind, payload map[string]string) error {
	d.log.Info("notification",
		zap.String("kind", string(kind)),
		zap.String("to", to.ID),
		zap.String("email", to.Email),
		zap.Any("payload", payload))
	return nil
}

// Multi fans a notification out to every dispatcher and joins the failures.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, to Recipient, kind Kind, payload map[string]string) error {
	var errs []error
	for _, d := range m {
		if err := d.Notify(ctx, to, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
