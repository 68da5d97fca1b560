package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
)

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Describe renders a short human readable summary of a five-field schedule.
func Describe(schedule string) string {
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return "Invalid cron expression"
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	switch {
	case minute == "0" && strings.HasPrefix(hour, "*/"):
		return fmt.Sprintf("This job runs every %s hours at minute 0.", strings.TrimPrefix(hour, "*/"))
	case dom == "*" && month == "*" && dow == "*":
		return fmt.Sprintf("Daily at %s:%s.", pad(hour), pad(minute))
	case dom == "*" && month == "*":
		return fmt.Sprintf("Weekly on %s at %s:%s.", weekdays(dow), pad(hour), pad(minute))
	case month == "*" && dow == "*":
		return fmt.Sprintf("Monthly on day %s at %s:%s.", dom, pad(hour), pad(minute))
	}
	return "Cron: " + strings.Join(fields, " ")
}

func pad(v string) string {
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return v
}

func weekdays(field string) string {
	var out []string
	for _, item := range strings.Split(field, ",") {
		lo, hi, isRange := strings.Cut(item, "-")
		if isRange {
			out = append(out, weekdayName(lo)+"-"+weekdayName(hi))
			continue
		}
		out = append(out, weekdayName(item))
	}
	return strings.Join(out, ", ")
}

func weekdayName(v string) string {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 7 {
		return v
	}
	return weekdayNames[n%7]
}
