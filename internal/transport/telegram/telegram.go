// Package telegram implements transport.Adapter on top of telebot.
//
// Group identifiers are Telegram chat ids in decimal form (for supergroups
// they are negative, e.g. "-1001234567890").
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"hydrobot/internal/runtime/supervisor"
	"hydrobot/internal/transport"
	"hydrobot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL string
	// Offline skips the getMe call at construction.
	Offline bool
}

// textLimit is below Telegram's 4096 rune cap.
const textLimit = 4000

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	out atomic.Value // stores (chan<- transport.Update)

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	dropped atomic.Uint64
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Client:  &http.Client{Timeout: timeout + 10*time.Second},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := toUpdate(c.Message()); ok {
			a.forward(up)
		}
		return nil
	})
	return a, nil
}

// toUpdate keeps group and supergroup text messages only.
func toUpdate(m *tele.Message) (transport.Update, bool) {
	if m == nil || m.Chat == nil {
		return transport.Update{}, false
	}
	if m.Chat.Type != tele.ChatGroup && m.Chat.Type != tele.ChatSuperGroup {
		return transport.Update{}, false
	}
	msg := &transport.Message{
		ID:      m.ID,
		GroupID: strconv.FormatInt(m.Chat.ID, 10),
		Text:    m.Text,
	}
	if m.Sender != nil {
		msg.SenderID = strconv.FormatInt(m.Sender.ID, 10)
		msg.SenderNickname = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
		if msg.SenderNickname == "" {
			msg.SenderNickname = m.Sender.Username
		}
	}
	return transport.Update{Kind: transport.UpdateGroupMessage, Message: msg}, true
}

func (a *Adapter) forward(up transport.Update) {
	out, _ := a.out.Load().(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) SelfID() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return strconv.FormatInt(a.bot.Me.ID, 10)
}

// Start begins long polling. Updates that do not fit in out are dropped
// and counted.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "telegram"))))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("telegram.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	sup.Go0("telegram.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until bot.Stop; restart it if it returns early.
	sup.GoRestart("telegram.poll", func(context.Context) error {
		a.log.Info("polling started", logx.Category("SYSTEM"))
		a.bot.Start()
		a.log.Info("polling stopped", logx.Category("SYSTEM"))
		return nil
	}, 500*time.Millisecond, 10*time.Second)
	return nil
}

func (a *Adapter) reportDropped(chanCap int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", chanCap))
	}
}

// Stop never blocks shutdown for longer than a short grace window.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

// ParseGroupID converts a decimal chat id.
func ParseGroupID(groupID string) (tele.ChatID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(groupID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q", groupID)
	}
	return tele.ChatID(id), nil
}

// SendGroupMessage sends text as plain text, split into chunks when it is
// longer than one Telegram message.
func (a *Adapter) SendGroupMessage(ctx context.Context, groupID string, text string) error {
	chat, err := ParseGroupID(groupID)
	if err != nil {
		return err
	}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return fmt.Errorf("send to %s: %w", groupID, err)
		}
	}
	return nil
}

// splitText splits s into chunks of at most limit runes, preferring
// newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}
