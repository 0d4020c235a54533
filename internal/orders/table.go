package orders

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const tablePrefix = "M"

var tableLabelRe = regexp.MustCompile(`^` + tablePrefix + `(\d+)$`)

// TableAssigner derives the next table label for orders submitted without
// one. Labels restart at M01 every calendar day in loc.
type TableAssigner struct {
	q   Queries
	now func() time.Time
	loc *time.Location
}

func NewTableAssigner(q Queries, now func() time.Time, loc *time.Location) *TableAssigner {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &TableAssigner{q: q, now: now, loc: loc}
}

// NextLabel takes the per-day lock before reading the latest order, so it
// must run in the same transaction that inserts the order.
func (a *TableAssigner) NextLabel(ctx context.Context) (string, error) {
	now := a.now()
	start, _ := dayBounds(now, a.loc)
	if err := a.q.LockDay(ctx, start); err != nil {
		return "", persistence("lock table sequence", err)
	}
	last, err := NewOrderLedger(a.q).GetMostRecentToday(ctx, now, a.loc)
	if err != nil {
		return "", err
	}
	if last == nil {
		return NextTableLabel(""), nil
	}
	return NextTableLabel(last.Customer.Table), nil
}

// NextTableLabel increments an M-prefixed label. Anything unparseable
// counts as zero.
func NextTableLabel(prev string) string {
	n := 0
	if m := tableLabelRe.FindStringSubmatch(prev); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
	}
	return fmt.Sprintf("%s%02d", tablePrefix, n+1)
}

func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
