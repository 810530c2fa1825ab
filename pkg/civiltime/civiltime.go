package civiltime

import (
	"fmt"
	"strings"
	"time"
)

// Zone is the suite's civil timezone. The UAE does not observe DST so a
// fixed offset is correct year-round.
var Zone = time.FixedZone("Asia/Dubai", 4*60*60)

// Now returns the current civil time. Override in tests.
var Now = func() time.Time { return time.Now().In(Zone) }

// Civil converts any instant to civil time.
func Civil(t time.Time) time.Time {
	return t.In(Zone)
}

// ParseDate parses a YYYY-MM-DD string as a civil date.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), Zone)
}

// InSickLeaveBlackout reports whether t falls inside the [05:30, 08:00)
// window during which same-day sick leave submissions are refused.
func InSickLeaveBlackout(t time.Time) bool {
	civil := Civil(t)
	minutes := civil.Hour()*60 + civil.Minute()
	return minutes >= 5*60+30 && minutes < 8*60
}

// HalfMonthWindow returns the rolling half-month interval containing d:
// starting on the 15th of d's month when d.Day() >= 15, otherwise on the
// 15th of the previous month, and ending on the 16th of the month after the
// start.
func HalfMonthWindow(d time.Time) (time.Time, time.Time) {
	civil := Civil(d)
	year, month := civil.Year(), civil.Month()
	var start time.Time
	if civil.Day() >= 15 {
		start = time.Date(year, month, 15, 0, 0, 0, 0, Zone)
	} else {
		start = time.Date(year, month, 15, 0, 0, 0, 0, Zone).AddDate(0, -1, 0)
	}
	end := time.Date(start.Year(), start.Month(), 16, 0, 0, 0, 0, Zone).AddDate(0, 1, 0)
	return start, end
}

// WindowFolderName renders the drive folder label for the window holding d.
func WindowFolderName(d time.Time) string {
	start, end := HalfMonthWindow(d)
	return fmt.Sprintf("%s_to_%s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// DutyFocusDate returns the date daily-duty screens should present: today
// before 15:00 civil, tomorrow at or after.
func DutyFocusDate(t time.Time) time.Time {
	civil := Civil(t)
	day := time.Date(civil.Year(), civil.Month(), civil.Day(), 0, 0, 0, 0, Zone)
	if civil.Hour() >= 15 {
		return day.AddDate(0, 0, 1)
	}
	return day
}

// DayCode maps a weekday to its two-letter schedule code; ok is false on
// weekends.
func DayCode(t time.Time) (string, bool) {
	switch Civil(t).Weekday() {
	case time.Monday:
		return "Mo", true
	case time.Tuesday:
		return "Tu", true
	case time.Wednesday:
		return "We", true
	case time.Thursday:
		return "Th", true
	case time.Friday:
		return "Fr", true
	default:
		return "", false
	}
}

// DayLabel expands a day code to its full weekday name.
func DayLabel(code string) string {
	switch code {
	case "Mo":
		return "Monday"
	case "Tu":
		return "Tuesday"
	case "We":
		return "Wednesday"
	case "Th":
		return "Thursday"
	case "Fr":
		return "Friday"
	default:
		return code
	}
}
