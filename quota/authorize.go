package quota

import (
	"fmt"

	"ledgemail/models"
	"ledgemail/plans"
)

// EmailType classifies a send for quota accounting.
type EmailType string

const (
	Marketing     EmailType = "marketing"
	Transactional EmailType = "transactional"
)

// ParseEmailType coerces a request value to a known type. Anything that is
// not exactly "transactional" counts as marketing, matching how the
// billing rules treat unknown types (the stricter marketing limits apply).
func ParseEmailType(s string) EmailType {
	if s == string(Transactional) {
		return Transactional
	}
	return Marketing
}

// Denial is a quota refusal with a human-readable, machine-checkable
// reason. Handlers surface it as HTTP 403.
type Denial struct {
	Reason string
}

func (d *Denial) Error() string { return d.Reason }

// AuthorizeSend decides whether a send of recipientCount emails of the
// given type is allowed for the tenant under plan p. Checks run in a fixed
// order and the first failure wins:
//
//  1. contact allowance — the recipient count is charged against the
//     contact limit even when recipients are not new contacts; this is the
//     product rule "you may not fan out past your contact allowance";
//  2. transactional capability;
//  3. daily limit for the type;
//  4. monthly limit for the type.
//
// Counters must have had any due ResetPatch applied first. The engine
// never dispatches email and never mutates the ledger; on success the
// caller sends through the provider and then records with RecordSend.
func AuthorizeSend(u models.User, p plans.Plan, emailType EmailType, recipientCount int) error {
	if u.ContactsCount+recipientCount > p.ContactLimit {
		return &Denial{Reason: fmt.Sprintf(
			"Contact limit exceeded. You have %d/%d contacts.", u.ContactsCount, p.ContactLimit)}
	}

	if emailType == Transactional && !p.Transactional.Enabled {
		return &Denial{Reason: "Transactional emails not available on your plan."}
	}

	usedDaily, usedMonthly, limits := usage(u, p, emailType)

	if usedDaily+recipientCount > limits.Daily {
		return &Denial{Reason: fmt.Sprintf(
			"Daily %s email limit exceeded: %d/%d", emailType, usedDaily, limits.Daily)}
	}

	if usedMonthly+recipientCount > limits.Monthly {
		return &Denial{Reason: fmt.Sprintf(
			"Monthly %s email limit exceeded: %d/%d", emailType, usedMonthly, limits.Monthly)}
	}

	return nil
}

// RecordSend applies the ledger update for a successfully delivered send:
// daily and monthly counters for the type, plus the contact-allowance
// counter, each incremented by the recipient count.
func RecordSend(u *models.User, emailType EmailType, recipientCount int) {
	switch emailType {
	case Transactional:
		u.DailyTransactionalSent += recipientCount
		u.MonthlyTransactionalSent += recipientCount
	default:
		u.DailyMarketingSent += recipientCount
		u.MonthlyMarketingSent += recipientCount
	}
	u.ContactsCount += recipientCount
}

func usage(u models.User, p plans.Plan, emailType EmailType) (usedDaily, usedMonthly int, limits plans.SendLimits) {
	if emailType == Transactional {
		return u.DailyTransactionalSent, u.MonthlyTransactionalSent, p.Transactional
	}
	return u.DailyMarketingSent, u.MonthlyMarketingSent, p.Marketing
}
