package validate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reEmail = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reCode  = regexp.MustCompile(`^[0-9]{6}$`)
	reCat   = regexp.MustCompile(`^[A-Za-z0-9 &_'-]{1,40}$`)
)

// Email trims and lower-cases s; emails are compared case-insensitively.
func Email(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 0 || len(s) > 254 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// Name validates a displayable name with a reasonable max length.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 60 {
		return "", false
	}
	return s, true
}

// Password only enforces what bcrypt can hash: 1..72 bytes.
func Password(s string) bool {
	return len(s) > 0 && len(s) <= 72
}

// Code reports whether s looks like a six digit reset code.
func Code(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reCode.MatchString(s)
}

// Qty parses a strictly positive quantity.
func Qty(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ProductID parses a positive integer product id.
func ProductID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func Category(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reCat.MatchString(s)
}
