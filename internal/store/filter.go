package store

import (
	"fmt"
	"strings"

	"github.com/Priya8975/traffic-tracker/internal/domain"
)

// whereBuilder accumulates AND-ed conditions with numbered placeholders.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (b *whereBuilder) add(cond string, arg interface{}) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, fmt.Sprintf(cond, len(b.args)))
}

// addRaw adds a condition that takes no argument.
func (b *whereBuilder) addRaw(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *whereBuilder) sql() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// nextArg returns the placeholder index for the next argument.
func (b *whereBuilder) nextArg() int {
	return len(b.args) + 1
}

// buildWhere translates the filter into a WHERE clause over event_logs.
func buildWhere(f domain.EventFilter) *whereBuilder {
	b := &whereBuilder{}

	if f.StartDate != nil {
		b.add("timestamp >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		b.add("timestamp <= $%d", *f.EndDate)
	}
	if f.Channel != "" {
		b.add("channel = $%d", f.Channel)
	}
	if f.Country != "" {
		b.add("country = $%d", f.Country)
	}
	if f.DeviceType != "" {
		b.add("device_type = $%d", f.DeviceType)
	}
	if f.IPAddress != "" {
		b.add("ip_address = $%d", f.IPAddress)
	}
	if f.UserAgentContains != "" {
		b.add("user_agent ILIKE $%d", likePattern(f.UserAgentContains))
	}
	if f.URLAccessedContains != "" {
		b.add("url_accessed ILIKE $%d", likePattern(f.URLAccessedContains))
	}
	if f.InvalidReasonContains != "" {
		b.add("invalid_reason ILIKE $%d", likePattern(f.InvalidReasonContains))
	}

	switch f.Status {
	case domain.StatusValid:
		b.addRaw("is_valid_click = TRUE")
	case domain.StatusInvalid:
		b.addRaw("is_valid_click = FALSE")
	}

	return b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps s for a substring match, escaping LIKE wildcards.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
