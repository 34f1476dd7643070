package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date form HTML date inputs submit.
const DateLayout = "2006-01-02"

// ErrNotInteger is returned when a numeric value has a fractional part.
var ErrNotInteger = errors.New("must be a whole number")

// IsNull reports whether raw is absent, empty or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// FlexibleIntValue converts a json.RawMessage to an int, accepting JSON
// numbers as well as numeric strings ("3"), which form-driven clients send.
func FlexibleIntValue(raw json.RawMessage) (int, error) {
	if IsNull(raw) {
		return 0, fmt.Errorf("value is empty")
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, fmt.Errorf("expected a number, got %s", string(raw))
		}
		str = strings.TrimSpace(str)
		if str == "" {
			return 0, fmt.Errorf("value is empty")
		}
		num, err = strconv.ParseFloat(str, 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", str)
		}
	}

	if num != math.Trunc(num) || math.IsInf(num, 0) || math.IsNaN(num) {
		return 0, ErrNotInteger
	}
	return int(num), nil
}

// FlexibleTimeValue converts a json.RawMessage holding an RFC 3339 timestamp
// or a YYYY-MM-DD date to a time.Time. Calendar dates are midnight UTC.
func FlexibleTimeValue(raw json.RawMessage) (time.Time, error) {
	if IsNull(raw) {
		return time.Time{}, fmt.Errorf("value is empty")
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, fmt.Errorf("expected a date string, got %s", string(raw))
	}
	return ParseFlexibleTime(str)
}

// ParseFlexibleTime parses an RFC 3339 timestamp or a YYYY-MM-DD date.
func ParseFlexibleTime(str string) (time.Time, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return time.Time{}, fmt.Errorf("value is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
		return t, nil
	}
	if t, err := time.Parse(DateLayout, str); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC 3339)", str)
}
