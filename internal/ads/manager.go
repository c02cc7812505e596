package ads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultListName is the shared IP exclusion list used when none is configured.
const DefaultListName = "Blocked_Invalid_Traffic_IPs"

var ErrNotInitialized = errors.New("Google Ads client not initialized")

// Manager adds IP addresses to a campaign's exclusion list.
type Manager interface {
	AddIPToExclusionList(ctx context.Context, ip, campaignID, listName string) (string, error)
	CustomerID() string
}

// SimulatedManager stands in for the Google Ads API. It makes no network
// calls and reports success for every request once a customer is configured.
type SimulatedManager struct {
	customerID string
	logger     *slog.Logger
}

func NewSimulatedManager(customerID string, logger *slog.Logger) *SimulatedManager {
	return &SimulatedManager{customerID: customerID, logger: logger}
}

func (m *SimulatedManager) CustomerID() string {
	return m.customerID
}

// AddIPToExclusionList returns the confirmation message for the simulated
// change.
func (m *SimulatedManager) AddIPToExclusionList(ctx context.Context, ip, campaignID, listName string) (string, error) {
	if m.customerID == "" {
		return "", ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if listName == "" {
		listName = DefaultListName
	}

	m.logger.Info("adding ip to exclusion list",
		"ip", ip,
		"campaign_id", campaignID,
		"list", listName,
		"customer_id", m.customerID,
	)

	msg := fmt.Sprintf("Successfully (simulated) added IP %s to exclusion list '%s' and applied to campaign %s.", ip, listName, campaignID)
	return msg, nil
}
