package provider

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/chunkd/logging"
)

// ConnectionString formats how peers reach a provider:
// "scheme://host:port/#providerId".
func ConnectionString(scheme, host string, port int, providerID string) string {
	return fmt.Sprintf("%s://%s/#%s", scheme, net.JoinHostPort(host, strconv.Itoa(port)), providerID)
}

// Announcement is what a provider publishes about itself.
type Announcement struct {
	Connection string
	Collateral uint64
	CostPerKB  uint64
}

// Announcer publishes a provider announcement to whatever registry
// peers consult (typically an on-chain contract).
type Announcer interface {
	AnnounceProvider(ctx context.Context, connection string, collateral, costPerKB uint64) error
}

// LogAnnouncer records the announcement in the log only.
type LogAnnouncer struct {
	Log logrus.FieldLogger
}

var _ Announcer = (*LogAnnouncer)(nil)

// AnnounceProvider implements Announcer.
func (a *LogAnnouncer) AnnounceProvider(_ context.Context, connection string, collateral, costPerKB uint64) error {
	logging.OrDiscard(a.Log).WithFields(logrus.Fields{
		"connection":  connection,
		"collateral":  collateral,
		"cost_per_kb": costPerKB,
	}).Info("provider announced")
	return nil
}

// Announce publishes ann through a.
func Announce(ctx context.Context, a Announcer, ann Announcement) error {
	if ann.Connection == "" {
		return fmt.Errorf("provider: empty connection string")
	}
	if err := a.AnnounceProvider(ctx, ann.Connection, ann.Collateral, ann.CostPerKB); err != nil {
		return fmt.Errorf("provider: announce: %w", err)
	}
	return nil
}
