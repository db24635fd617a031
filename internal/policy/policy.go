package policy

import (
	"fmt"
	"time"

	"ms-checkin/internal/models"
)

type Code int

const (
	Allow Code = iota
	DenyAlready
	DenyDailyLimit
	DenyInvalidDay
	DenyZone
	DenyUnknownTicket
)

func (c Code) String() string {
	switch c {
	case Allow:
		return "ALLOW"
	case DenyAlready:
		return "DENY_ALREADY"
	case DenyDailyLimit:
		return "DENY_DAILY_LIMIT"
	case DenyInvalidDay:
		return "DENY_INVALID_DAY"
	case DenyZone:
		return "DENY_ZONE"
	case DenyUnknownTicket:
		return "DENY_UNKNOWN_TICKET"
	default:
		return "UNKNOWN"
	}
}

// Decision is the outcome of evaluating one redemption attempt. Reason is
// operator-displayable; EntryNumber is set only on Allow.
type Decision struct {
	Code        Code
	EntryNumber int
	Reason      string
}

func (d Decision) Allowed() bool { return d.Code == Allow }

// Evaluator applies a ticket type's access policy against redemption
// history. Location controls which calendar date "today" means for the
// daily-limit and valid-days rules; it defaults to UTC, matching how the
// original store derived dates.
type Evaluator struct {
	Location *time.Location
}

func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{Location: loc}
}

// Evaluate runs the policy rules in fixed order; the first failing rule
// wins. "Already checked in" is checked before day and zone rules so the
// operator sees the most actionable message first.
func (e *Evaluator) Evaluate(ac models.AccessControl, history []models.CheckinHistory, requestedZone string, now time.Time) Decision {
	today := now.In(e.loc()).Format("2006-01-02")

	if len(history) > 0 && !ac.AllowMultipleEntries {
		last := history[len(history)-1]
		return Decision{
			Code:   DenyAlready,
			Reason: fmt.Sprintf("Already checked in at %s", last.CheckedInAt.In(e.loc()).Format("15:04:05")),
		}
	}

	if ac.MaxEntriesPerDay > 0 {
		todayCount := 0
		for _, h := range history {
			if h.CheckedInAt.In(e.loc()).Format("2006-01-02") == today {
				todayCount++
			}
		}
		if todayCount >= ac.MaxEntriesPerDay {
			return Decision{
				Code:   DenyDailyLimit,
				Reason: fmt.Sprintf("Daily entry limit reached (%d per day)", ac.MaxEntriesPerDay),
			}
		}
	}

	if len(ac.ValidDays) > 0 && !contains(ac.ValidDays, today) {
		return Decision{
			Code:   DenyInvalidDay,
			Reason: fmt.Sprintf("Ticket is not valid today (%s)", today),
		}
	}

	if requestedZone != "" && !ac.AllowsZone(requestedZone) {
		return Decision{
			Code:   DenyZone,
			Reason: fmt.Sprintf("Ticket does not grant access to zone %q", requestedZone),
		}
	}

	return Decision{
		Code:        Allow,
		EntryNumber: len(history) + 1,
		Reason:      fmt.Sprintf("Entry #%d authorized", len(history)+1),
	}
}

func (e *Evaluator) loc() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}
