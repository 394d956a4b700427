package config

import (
	"reflect"

	"hydrobot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe log
// fields describing them. Secrets (token, api key) are reported only as
// "set" flags.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.admin_group", newCfg.Telegram.AdminGroup),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.chat", newCfg.Logging.Chat.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Feed, newCfg.Feed) {
		changed = append(changed, "feed")
		attrs = append(attrs,
			logx.Int("feed.urls", len(newCfg.Feed.URLs)),
			logx.String("feed.interval", newCfg.Feed.Interval),
		)
	}
	if !reflect.DeepEqual(oldCfg.Presence, newCfg.Presence) {
		changed = append(changed, "presence")
		attrs = append(attrs,
			logx.Bool("presence.api_key_set", newCfg.Presence.APIKey != ""),
			logx.Int("presence.subjects", len(newCfg.Presence.SubjectIDs)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Destinations, newCfg.Destinations) {
		changed = append(changed, "destinations")
		attrs = append(attrs, logx.Int("destinations", len(newCfg.Destinations)))
	}
	if !reflect.DeepEqual(oldCfg.TargetGroups, newCfg.TargetGroups) {
		changed = append(changed, "target_groups")
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	return changed, attrs
}
