package config

import (
	"errors"
	"slices"
	"strings"
)

var (
	// ErrExists reports that an append found the value already present.
	ErrExists = errors.New("already present")
	// ErrNotSaved reports a change that was committed in memory but could
	// not be written to the config file.
	ErrNotSaved = errors.New("config change not saved")
)

// The append operations below are the only way the command path changes
// monitored sources and destinations. Each one is a single Update, so it is
// atomic with respect to other appends and to monitor snapshots.

// AddFeedURL appends a feed source. Duplicates are rejected with ErrExists.
func (m *Manager) AddFeedURL(raw string) error {
	u := strings.TrimSpace(raw)
	if err := ValidateFeedURL(u); err != nil {
		return err
	}
	_, err := m.Update(func(cfg *Config) error {
		if slices.Contains(cfg.Feed.URLs, u) {
			return ErrExists
		}
		cfg.Feed.URLs = append(cfg.Feed.URLs, u)
		return nil
	})
	return err
}

// AddDestination adds a group to the notification destination set.
func (m *Manager) AddDestination(groupID string) error {
	return m.addGroup(groupID, func(cfg *Config) *[]string { return &cfg.Destinations })
}

// AddTargetGroup registers a group through the "reg" command.
func (m *Manager) AddTargetGroup(groupID string) error {
	return m.addGroup(groupID, func(cfg *Config) *[]string { return &cfg.TargetGroups })
}

func (m *Manager) addGroup(groupID string, field func(*Config) *[]string) error {
	id := strings.TrimSpace(groupID)
	if id == "" {
		return errors.New("group id is empty")
	}
	_, err := m.Update(func(cfg *Config) error {
		list := field(cfg)
		if slices.Contains(*list, id) {
			return ErrExists
		}
		*list = append(*list, id)
		return nil
	})
	return err
}

// SetAPIKey replaces the presence monitor credential.
func (m *Manager) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is empty")
	}
	_, err := m.Update(func(cfg *Config) error {
		cfg.Presence.APIKey = key
		return nil
	})
	return err
}

// AddSubject appends a presence subject (SteamID64).
func (m *Manager) AddSubject(id uint64) error {
	if id == 0 {
		return errors.New("subject id is zero")
	}
	_, err := m.Update(func(cfg *Config) error {
		if slices.Contains(cfg.Presence.SubjectIDs, id) {
			return ErrExists
		}
		cfg.Presence.SubjectIDs = append(cfg.Presence.SubjectIDs, id)
		return nil
	})
	return err
}

// Destinations returns the current destination set.
func (m *Manager) Destinations() []string {
	return m.Get().Destinations
}
