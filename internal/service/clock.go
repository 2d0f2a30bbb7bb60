package service

import (
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
)

const (
	dateLayout      = "2006-01-02"
	humanTimeLayout = "02 Jan 2006 15:04"
)

// TenantClock supplies the current instant and the calendar location of a tenant.
type TenantClock interface {
	Now() time.Time
	Location(tenantID string) *time.Location
}

// ZoneClock places every tenant in one configured location.
type ZoneClock struct {
	loc *time.Location
	now func() time.Time
}

// NewZoneClock builds a clock for loc. A nil location means UTC.
func NewZoneClock(loc *time.Location) *ZoneClock {
	if loc == nil {
		loc = time.UTC
	}
	return &ZoneClock{loc: loc, now: time.Now}
}

// LoadZoneClock resolves an IANA zone name such as "Asia/Jakarta".
func LoadZoneClock(name string) (*ZoneClock, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("load tenant timezone %q: %w", name, err)
	}
	return NewZoneClock(loc), nil
}

// Now returns the current instant in UTC.
func (c *ZoneClock) Now() time.Time {
	return c.now().UTC()
}

// Location returns the configured location for any tenant.
func (c *ZoneClock) Location(string) *time.Location {
	return c.loc
}

// DayBounds returns [start, end) of the calendar day containing date in loc.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := date.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate parses a YYYY-MM-DD calendar date in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw))
	}
	return date, nil
}

// HumanTime formats t for display in loc.
func HumanTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(humanTimeLayout)
}

// PreviousDay returns the start of the tenant-local day before now.
func PreviousDay(clock TenantClock, tenantID string) time.Time {
	start, _ := DayBounds(clock.Now(), clock.Location(tenantID))
	return start.AddDate(0, 0, -1)
}
