package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultExternalExpression is used when a schedule cannot be translated.
const DefaultExternalExpression = "rate(1 hour)"

var nativePrefixes = []string{"cron(", "rate(", "at("}

// IsExternalExpression reports whether expr is already in the facility dialect.
func IsExternalExpression(expr string) bool {
	expr = strings.TrimSpace(expr)
	for _, p := range nativePrefixes {
		if strings.HasPrefix(expr, p) && strings.HasSuffix(expr, ")") {
			return true
		}
	}
	return false
}

// ToExternalTriggerExpression renders schedule as cron(min hour dom month dow year).
// Exactly one of the two day fields carries "?" and weekdays are numbered 1-7
// starting on Sunday. Input that is not a five-field expression is returned
// unchanged; an empty or invalid five-field expression maps to
// DefaultExternalExpression.
func ToExternalTriggerExpression(schedule string) string {
	trimmed := strings.TrimSpace(schedule)
	if trimmed == "" {
		return DefaultExternalExpression
	}
	if IsExternalExpression(trimmed) || len(strings.Fields(trimmed)) != 5 {
		return trimmed
	}

	s, err := Parse(trimmed)
	if err != nil {
		return DefaultExternalExpression
	}

	minute, hour, dom, month, dow := s.Fields[0], s.Fields[1], s.Fields[2], s.Fields[3], s.Fields[4]
	if dow != "*" && dow != "?" {
		shifted, err := shiftWeekdays(dow, 1)
		if err != nil {
			return DefaultExternalExpression
		}
		dom, dow = "?", shifted
	} else {
		dow = "?"
		if dom == "?" {
			dom = "*"
		}
	}

	return fmt.Sprintf("cron(%s %s %s %s %s *)", minute, hour, dom, month, dow)
}

// FromExternalTriggerExpression converts a facility expression back into a
// schedule the local cron engine accepts. rate() expressions become "@every"
// descriptors; at() one-shots have no recurring form and are rejected.
func FromExternalTriggerExpression(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "cron(") && strings.HasSuffix(expr, ")"):
		fields := strings.Fields(expr[len("cron(") : len(expr)-1])
		if len(fields) != 6 {
			return "", fmt.Errorf("%w: expected 6 fields in %q", ErrInvalidSchedule, expr)
		}
		dom, dow := fields[2], fields[4]
		if dom == "?" {
			dom = "*"
		}
		if dow == "?" {
			dow = "*"
		} else {
			shifted, err := shiftWeekdays(dow, -1)
			if err != nil {
				return "", err
			}
			dow = shifted
		}
		out := strings.Join([]string{fields[0], fields[1], dom, fields[3], dow}, " ")
		if _, err := Parse(out); err != nil {
			return "", err
		}
		return out, nil
	case strings.HasPrefix(expr, "rate(") && strings.HasSuffix(expr, ")"):
		return rateToEvery(expr[len("rate(") : len(expr)-1])
	case strings.HasPrefix(expr, "at("):
		return "", fmt.Errorf("%w: one-shot expression %q has no recurring form", ErrInvalidSchedule, expr)
	}

	if _, err := Parse(expr); err != nil {
		return "", err
	}
	return expr, nil
}

func rateToEvery(body string) (string, error) {
	parts := strings.Fields(body)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: malformed rate %q", ErrInvalidSchedule, body)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%w: malformed rate %q", ErrInvalidSchedule, body)
	}

	unit := strings.TrimSuffix(strings.ToLower(parts[1]), "s")
	switch unit {
	case "minute":
		return fmt.Sprintf("@every %dm", n), nil
	case "hour":
		return fmt.Sprintf("@every %dh", n), nil
	case "day":
		return fmt.Sprintf("@every %dh", n*24), nil
	}
	return "", fmt.Errorf("%w: unknown rate unit %q", ErrInvalidSchedule, parts[1])
}

// shiftWeekdays renumbers every weekday number in a day-of-week field, leaving
// step values and names untouched.
func shiftWeekdays(field string, delta int) (string, error) {
	items := strings.Split(field, ",")
	for i, item := range items {
		rangePart, step, hasStep := strings.Cut(item, "/")
		bounds := strings.Split(rangePart, "-")
		for j, b := range bounds {
			if b == "*" || b == "?" || b == "" {
				continue
			}
			n, err := strconv.Atoi(b)
			if err != nil {
				// named weekdays (MON, TUE...) are the same in both dialects
				continue
			}
			shifted := n + delta
			if shifted < 0 || shifted > 7 {
				return "", fmt.Errorf("%w: weekday %d out of range", ErrInvalidSchedule, n)
			}
			bounds[j] = strconv.Itoa(shifted)
		}
		items[i] = strings.Join(bounds, "-")
		if hasStep {
			items[i] += "/" + step
		}
	}
	return strings.Join(items, ","), nil
}
