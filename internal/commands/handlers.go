package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hydrobot/internal/config"
)

const helpText = "🤖 Bot commands\n" +
	"━━━━━━━━━━━━━━\n" +
	"📡 [Feed subscriptions]\n" +
	"Send: rss help\n\n" +
	"🎮 [Steam presence]\n" +
	"Send: steam help\n\n" +
	"📊 status - monitor status\n" +
	"━━━━━━━━━━━━━━\n" +
	"Sending a bare command word also shows its help"

const rssHelp = "📡 Feed commands:\n" +
	"• rss add <url> - subscribe to a feed\n" +
	"• rss list - list subscribed feeds\n" +
	"• rss add-group this - notify this group\n" +
	"• rss add-group <id> - notify another group"

const steamHelp = "🎮 Steam commands:\n" +
	"• steam set-key <key> - set the Web API key\n" +
	"• steam add <id64> - watch a player\n" +
	"• steam list - list watched players\n" +
	"Note: the player's profile must be public"

func (r *Router) help(context.Context, *Request) string { return helpText }

func (r *Router) hello(context.Context, *Request) string { return "hi" }

func (r *Router) rss(ctx context.Context, req *Request) string {
	value := req.Arg(1)
	switch strings.ToLower(req.Arg(0)) {
	case "add":
		if value == "" {
			return "❌ Usage: rss add <url>"
		}
		err := r.deps.Config.AddFeedURL(value)
		r.audit(ctx, req, "rss add", value, err)
		return mutationReply(err,
			"✅ Feed added: "+value,
			"ℹ️ Feed "+value+" is already subscribed.")
	case "list":
		urls := r.deps.Config.Get().Feed.URLs
		if len(urls) == 0 {
			return "No feeds subscribed."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d feed(s):", len(urls))
		for i, u := range urls {
			fmt.Fprintf(&b, "\n%d. %s", i+1, u)
		}
		return b.String()
	case "add-group":
		if value == "" {
			return "❌ Usage: rss add-group <id|this>"
		}
		target := resolveGroup(req, value)
		err := r.deps.Config.AddDestination(target)
		r.audit(ctx, req, "rss add-group", target, err)
		return mutationReply(err,
			"✅ Notification destination added: "+target,
			"ℹ️ Group "+target+" is already a destination.")
	default:
		return rssHelp
	}
}

func (r *Router) steam(ctx context.Context, req *Request) string {
	value := req.Arg(1)
	switch strings.ToLower(req.Arg(0)) {
	case "set-key":
		if value == "" {
			return "❌ Usage: steam set-key <key>"
		}
		err := r.deps.Config.SetAPIKey(value)
		r.audit(ctx, req, "steam set-key", "", err)
		return mutationReply(err, "✅ Steam API key updated", "")
	case "add":
		id, perr := strconv.ParseUint(value, 10, 64)
		if perr != nil || id == 0 {
			return "❌ Invalid SteamID64"
		}
		err := r.deps.Config.AddSubject(id)
		r.audit(ctx, req, "steam add", value, err)
		return mutationReply(err,
			"✅ SteamID added: "+value,
			"ℹ️ SteamID "+value+" is already watched.")
	case "list":
		ids := r.deps.Config.Get().Presence.SubjectIDs
		if len(ids) == 0 {
			return "No players watched."
		}
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = strconv.FormatUint(id, 10)
		}
		return fmt.Sprintf("%d player(s): %s", len(ids), strings.Join(strs, ", "))
	default:
		return steamHelp
	}
}

func (r *Router) reg(ctx context.Context, req *Request) string {
	value := req.Arg(0)
	if value == "" {
		return "❌ Usage: reg <id|this>"
	}
	target := resolveGroup(req, value)
	err := r.deps.Config.AddTargetGroup(target)
	r.audit(ctx, req, "reg", target, err)
	return mutationReply(err,
		"✅ Group registered: "+target,
		"ℹ️ Group "+target+" is already registered.")
}

func resolveGroup(req *Request, value string) string {
	if strings.EqualFold(value, "this") {
		return req.Msg.GroupID
	}
	return value
}

func mutationReply(err error, ok, exists string) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, config.ErrExists):
		return exists
	case errors.Is(err, config.ErrNotSaved):
		return ok + "\n⚠️ The change is active but could not be saved to disk."
	default:
		return "❌ " + err.Error()
	}
}
