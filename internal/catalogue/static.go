// Package catalogue provides the static, config-driven ChannelCatalogue and
// UserStore implementations used when no external catalogue ingestion or
// user database is wired in. Both are read-only snapshots built once at
// startup from the loaded configuration.
package catalogue

import (
	"time"

	"github.com/jmylchreest/streamgate/internal/config"
	"github.com/jmylchreest/streamgate/internal/models"
)

// StaticCatalogue resolves virtual IDs against a fixed, in-memory channel
// list loaded from configuration.
type StaticCatalogue struct {
	channels map[uint32]*models.StreamChannel
}

// NewStaticCatalogue builds a StaticCatalogue from configured channel entries.
func NewStaticCatalogue(entries []config.ChannelConfig) *StaticCatalogue {
	channels := make(map[uint32]*models.StreamChannel, len(entries))
	for _, e := range entries {
		channels[e.VirtualID] = &models.StreamChannel{
			VirtualID:  e.VirtualID,
			TargetID:   e.TargetID,
			ProviderID: e.ProviderID,
			Cluster:    models.Cluster(e.Cluster),
			ItemType:   models.ItemType(e.ItemType),
			Title:      e.Title,
			Group:      e.Group,
			URL:        e.URL,
			LogoURL:    e.LogoURL,
			Shared:     e.Shared,
		}
	}
	return &StaticCatalogue{channels: channels}
}

// Lookup implements relay.ChannelCatalogue.
func (c *StaticCatalogue) Lookup(virtualID uint32) (*models.StreamChannel, bool) {
	ch, ok := c.channels[virtualID]
	return ch, ok
}

// Len returns the number of catalogued channels.
func (c *StaticCatalogue) Len() int {
	return len(c.channels)
}

// StaticUserStore resolves credentials against a fixed, in-memory account
// list loaded from configuration. A missing max_connections or status falls
// back to the configured per-user defaults.
type StaticUserStore struct {
	accounts map[string]*models.UserCredentials
}

// NewStaticUserStore builds a StaticUserStore from configured accounts,
// applying defaults defaults for any field an entry leaves zero-valued.
func NewStaticUserStore(entries []config.AccountConfig, defaults config.UserConfig) *StaticUserStore {
	accounts := make(map[string]*models.UserCredentials, len(entries))
	for _, e := range entries {
		maxConn := e.MaxConnections
		if maxConn == 0 {
			maxConn = defaults.MaxConnections
		}
		status := e.Status
		if status == "" {
			status = defaults.Status
		}
		var expDate *time.Time
		if e.ExpDate != nil {
			t := e.ExpDate.Time()
			expDate = &t
		}
		accounts[e.Username] = &models.UserCredentials{
			Username:       e.Username,
			Password:       e.Password,
			MaxConnections: maxConn,
			ProxyMode:      models.ProxyMode(defaults.Proxy),
			Status:         status,
			ExpDate:        expDate,
		}
	}
	return &StaticUserStore{accounts: accounts}
}

// Lookup implements relay.UserStore.
func (s *StaticUserStore) Lookup(username, password string) (*models.UserCredentials, bool) {
	u, ok := s.accounts[username]
	if !ok || u.Password != password {
		return nil, false
	}
	return u, true
}

// Len returns the number of accounts.
func (s *StaticUserStore) Len() int {
	return len(s.accounts)
}
