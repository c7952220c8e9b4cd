// internal/domain/dispatch/message.go
package dispatch

import (
	"fmt"
	"strings"

	"property_due_alerts/internal/domain/obligation"
)

// Subject is the one-line headline of an alert.
func Subject(a DueAlert) string {
	return fmt.Sprintf("%s %q %s", capitalize(string(a.Obligation.Kind)), a.Obligation.Title, a.Rule.LeadTime.Label())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Summary is the compact payload description stored on receipts.
func Summary(a DueAlert) string {
	return fmt.Sprintf("%s %q due %s (%s)",
		a.Obligation.Kind, a.Obligation.Title,
		a.Obligation.DueDate.Format(obligation.DateLayout), a.Rule.LeadTime)
}

// Body renders the full plain-text notification.
func Body(a DueAlert) string {
	var b strings.Builder
	b.WriteString(Subject(a))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Due date: %s\n", a.Obligation.DueDate.Format(obligation.DateLayout))
	if a.Obligation.Amount.Valid {
		fmt.Fprintf(&b, "Amount: %s\n", a.Obligation.Amount.Decimal.StringFixed(2))
	}
	if a.Obligation.IsRecurring() {
		fmt.Fprintf(&b, "Recurrence: %s\n", a.Obligation.Recurrence)
	}
	fmt.Fprintf(&b, "Reference: %s", a.Obligation.ID)
	return b.String()
}
