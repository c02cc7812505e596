package domain

import (
	"errors"
	"strings"
	"time"
)

// Status selects events by their validity flag.
type Status string

const (
	StatusAll     Status = "all"
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
)

var ErrInvalidStatus = errors.New("status must be one of valid, invalid, all")

// ParseStatus accepts valid, invalid or all (case-insensitive). Empty means all.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return StatusAll, nil
	case "valid":
		return StatusValid, nil
	case "invalid":
		return StatusInvalid, nil
	}
	return "", ErrInvalidStatus
}

// EventFilter is the shared filter vocabulary of the read endpoints.
// Zero-valued fields do not constrain the result.
type EventFilter struct {
	StartDate             *time.Time
	EndDate               *time.Time
	Channel               string
	Country               string
	DeviceType            string
	Status                Status
	IPAddress             string
	UserAgentContains     string
	URLAccessedContains   string
	InvalidReasonContains string
}
