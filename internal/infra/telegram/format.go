package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"property_due_alerts/internal/app"
	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"
)

const addObligationUsage = "Usage: /add_obligation <contract|service|maintenance> <YYYY-MM-DD> <none|monthly|bimonthly|quarterly|semiannual|annual> <title>"

// parseAddObligation reads "<kind> <date> <recurrence> <title...>".
func parseAddObligation(args []string) (obligation.Kind, obligation.Recurrence, string, string, error) {
	if len(args) < 4 {
		return "", "", "", "", ierr.NewError("missing arguments").WithHint(addObligationUsage).Mark(ierr.ErrValidation)
	}
	kind := obligation.Kind(strings.ToLower(args[0]))
	if err := kind.Validate(); err != nil {
		return "", "", "", "", err
	}
	recurrence := obligation.Recurrence(strings.ToLower(args[2]))
	if err := recurrence.Validate(); err != nil {
		return "", "", "", "", err
	}
	return kind, recurrence, args[1], strings.Join(args[3:], " "), nil
}

// parseStatusFilter maps the /obligations argument to statuses; nil means all.
func parseStatusFilter(args []string) ([]obligation.Status, error) {
	if len(args) == 0 {
		return []obligation.Status{obligation.StatusActive, obligation.StatusOverdue}, nil
	}
	switch arg := strings.ToLower(args[0]); arg {
	case "all":
		return nil, nil
	case string(obligation.StatusActive), string(obligation.StatusOverdue),
		string(obligation.StatusRenewed), string(obligation.StatusCancelled):
		return []obligation.Status{obligation.Status(arg)}, nil
	default:
		return nil, fmt.Errorf("unknown filter %q, use active, overdue, renewed, cancelled or all", arg)
	}
}

// parseCallback splits inline button data into action and obligation id.
func parseCallback(data string) (string, string, error) {
	for _, prefix := range []string{callbackRenew, callbackCancel} {
		if id, ok := strings.CutPrefix(data, prefix); ok && id != "" {
			return strings.TrimSuffix(prefix, "_"), id, nil
		}
	}
	return "", "", fmt.Errorf("unhandled callback data: %s", data)
}

// formatObligation shows the status as of asOf, so a missed due date reads as
// overdue before the next cycle records it.
func formatObligation(o *obligation.Obligation, asOf time.Time) string {
	line := fmt.Sprintf("• %s [%s] %s, due %s, %s", o.Title, o.Kind, o.EffectiveStatus(asOf),
		o.DueDate.Format(obligation.DateLayout), o.Recurrence)
	if o.Amount.Valid {
		line += ", " + o.Amount.Decimal.StringFixed(2)
	}
	return line + "\n  id: " + o.ID
}

func formatObligations(list []*obligation.Obligation, asOf time.Time) string {
	if len(list) == 0 {
		return "No obligations found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Obligations (%d):\n", len(list))
	for _, o := range list {
		b.WriteString(formatObligation(o, asOf))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDueAlerts(asOf string, alerts []dispatch.DueAlert) string {
	if len(alerts) == 0 {
		return fmt.Sprintf("No alerts due on %s.", asOf)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Alerts due on %s (%d):\n", asOf, len(alerts))
	for _, a := range alerts {
		fmt.Fprintf(&b, "• %s, fires %s\n", dispatch.Summary(a), a.FireDate.Format(obligation.DateLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRenewal(res *app.RenewResult) string {
	msg := fmt.Sprintf("Obligation %q marked as renewed.", res.Renewed.Title)
	if res.Next != nil {
		msg += fmt.Sprintf(" Next cycle due %s (id: %s).", res.Next.DueDate.Format(obligation.DateLayout), res.Next.ID)
	}
	return msg
}

// userMessage turns a service error into a reply for the chat.
func userMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return "Error: you are not allowed to run this command."
	case ierr.Is(err, ierr.ErrNotFound):
		return "Error: obligation not found."
	case ierr.Is(err, ierr.ErrInvalidTransition),
		ierr.Is(err, ierr.ErrValidation),
		ierr.Is(err, ierr.ErrInvalidObligation):
		if hint := ierr.GetHint(err); hint != "" {
			return "Error: " + hint
		}
		return "Error: " + err.Error()
	case ierr.Is(err, ierr.ErrStoreUnavailable):
		return "The database is unavailable right now. Please try again later."
	default:
		return "Something went wrong: " + err.Error()
	}
}
