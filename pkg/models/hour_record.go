package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type HourRecord struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	TaskID      string          `json:"task_id"`
	WorkDate    time.Time       `json:"work_date"`
	HoursWorked decimal.Decimal `json:"hours_worked"`
	Description *string         `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Period returns the (month, year) of the record's UTC work date.
func (r *HourRecord) Period() Period {
	return PeriodOf(r.WorkDate)
}
