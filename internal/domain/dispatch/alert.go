// internal/domain/dispatch/alert.go
package dispatch

import (
	"fmt"
	"time"

	"property_due_alerts/internal/domain/obligation"
)

// DueAlert is one rule whose fire date has been reached.
type DueAlert struct {
	Obligation obligation.Obligation // snapshot without rules
	Rule       obligation.AlertRule
	FireDate   time.Time
}

// Key identifies the alert in logs.
func (a DueAlert) Key() string {
	return fmt.Sprintf("%s/%s", a.Obligation.ID, a.Rule.LeadTime)
}
