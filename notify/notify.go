/*
Package notify implements leave.Notifier.

PURPOSE:
  Turns engine events into something a person sees: a log line in
  development, an email in production. Notifiers are fire-and-forget by
  contract - delivery failures are logged and swallowed, never propagated
  back into the engine.

SEE ALSO:
  - leave/events.go: the event contract
*/
package notify

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LOG NOTIFIER
// =============================================================================

// Log writes every event to the standard logger. The default for
// development and the fallback when SMTP is not configured.
type Log struct{}

func (Log) Notify(_ context.Context, ev leave.Event) {
	switch {
	case ev.Application != nil:
		log.Printf("[notify] %s %s user=%s status=%s stage=%s by=%s",
			ev.Kind, ev.Application.Number, ev.Application.UserID,
			ev.Application.Status, ev.Stage, ev.Actor.ID)
	case ev.Balance != nil:
		log.Printf("[notify] %s user=%s type=%s year=%d allocated=%s available=%s by=%s",
			ev.Kind, ev.Balance.UserID, ev.Balance.Type, ev.Balance.Year,
			ev.Balance.Allocated, ev.Balance.Available, ev.Actor.ID)
	default:
		log.Printf("[notify] %s by=%s", ev.Kind, ev.Actor.ID)
	}
}

// =============================================================================
// MAIL NOTIFIER
// =============================================================================

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mail emails the affected employee about application outcomes. Balance
// events are log-only; nobody wants an email per allocated row.
type Mail struct {
	dialer    *gomail.Dialer
	from      string
	employees leave.EmployeeStore
}

func NewMail(cfg MailConfig, employees leave.EmployeeStore) *Mail {
	return &Mail{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:      cfg.From,
		employees: employees,
	}
}

func (m *Mail) Notify(ctx context.Context, ev leave.Event) {
	Log{}.Notify(ctx, ev)

	if ev.Application == nil {
		return
	}

	emp, err := m.employees.GetEmployee(ctx, ev.Application.UserID)
	if err != nil || emp.Email == "" {
		return
	}

	subject, body := render(ev)
	if subject == "" {
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", emp.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", fmt.Sprintf("Hi %s,\n\n%s\n", emp.Name, body))

	if err := m.dialer.DialAndSend(msg); err != nil {
		log.Printf("[notify] mail delivery failed for %s: %v", ev.Application.Number, err)
	}
}

func render(ev leave.Event) (subject, body string) {
	app := ev.Application
	switch ev.Kind {
	case leave.EventApplicationSubmitted:
		return fmt.Sprintf("Leave application %s submitted", app.Number),
			fmt.Sprintf("Your %s application %s for %d working day(s), %s to %s, is awaiting director approval.",
				app.Type, app.Number, app.WorkingDays, app.StartDate, app.EndDate)
	case leave.EventApplicationApproved:
		if ev.Stage == "hr" {
			return fmt.Sprintf("Leave application %s approved", app.Number),
				fmt.Sprintf("Your %s application %s is fully approved. Leave runs %s to %s; resume work on %s.",
					app.Type, app.Number, app.StartDate, app.EndDate, app.ResumptionDate)
		}
		return fmt.Sprintf("Leave application %s cleared director review", app.Number),
			fmt.Sprintf("Your %s application %s was approved by the director and is awaiting HR.",
				app.Type, app.Number)
	case leave.EventApplicationRejected:
		comments := ""
		if ev.Stage == "hr" && app.HR != nil {
			comments = app.HR.Comments
		} else if app.Director != nil {
			comments = app.Director.Comments
		}
		return fmt.Sprintf("Leave application %s rejected", app.Number),
			fmt.Sprintf("Your %s application %s was rejected: %s", app.Type, app.Number, comments)
	}
	return "", ""
}
