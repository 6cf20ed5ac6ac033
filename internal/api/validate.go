package api

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	errs "place-registry/pkg/errors"
)

const (
	minDescriptionLen = 5
	minPasswordLen    = 6
)

// checks accumulates input problems for one request.
type checks struct {
	problems []string
}

func (c *checks) notEmpty(field, v string) {
	if strings.TrimSpace(v) == "" {
		c.problems = append(c.problems, field+" must not be empty")
	}
}

func (c *checks) minLen(field, v string, n int) {
	if utf8.RuneCountInString(strings.TrimSpace(v)) < n {
		c.problems = append(c.problems, field+" is too short")
	}
}

func (c *checks) email(field, v string) {
	addr, err := mail.ParseAddress(strings.TrimSpace(v))
	if err != nil || addr.Name != "" || !strings.Contains(addr.Address, "@") {
		c.problems = append(c.problems, field+" must be a valid email address")
	}
}

func (c *checks) err(op string) error {
	if len(c.problems) == 0 {
		return nil
	}
	return errs.NewValidation(op, "invalid inputs passed, please check your data: "+strings.Join(c.problems, "; "), nil)
}
