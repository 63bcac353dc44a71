package billing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
)

// PeriodsOf returns the distinct UTC periods of the given dates, oldest first.
func PeriodsOf(dates ...time.Time) []models.Period {
	seen := make(map[models.Period]bool, len(dates))
	var periods []models.Period
	for _, d := range dates {
		p := models.PeriodOf(d)
		if !seen[p] {
			seen[p] = true
			periods = append(periods, p)
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
	return periods
}

// guardPeriods fails if the owner has a closed closure for any of periods.
// Every period is inspected before reporting, and nothing is written, so a
// veto leaves no partial change behind.
func guardPeriods(ctx context.Context, l *db.Ledger, ownerID string, periods []models.Period) error {
	var closed []models.Period
	for _, p := range periods {
		c, err := l.GetClosureByPeriod(ctx, ownerID, p)
		if err != nil {
			return err
		}
		if c != nil && c.IsClosed() {
			closed = append(closed, p)
		}
	}

	switch len(closed) {
	case 0:
		return nil
	case 1:
		return periodClosed(closed[0])
	}

	names := make([]string, len(closed))
	for i, p := range closed {
		names[i] = p.String()
	}
	first := closed[0]
	return &Error{
		Kind:    ErrValidation,
		Message: "periods " + strings.Join(names, ", ") + " are closed",
		Period:  &first,
	}
}

// recordPeriods returns the distinct work-date periods of records.
func recordPeriods(records []*models.HourRecord) []models.Period {
	dates := make([]time.Time, len(records))
	for i, r := range records {
		dates[i] = r.WorkDate
	}
	return PeriodsOf(dates...)
}
