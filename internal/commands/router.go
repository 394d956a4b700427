// Package commands answers text commands posted in chat groups.
//
// A command is the first whitespace-separated word of a message ("rss",
// "steam", "reg", ...); the rest are arguments. Messages that are not
// commands are ignored silently.
package commands

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"hydrobot/internal/config"
	"hydrobot/internal/monitor"
	"hydrobot/internal/runtime/supervisor"
	"hydrobot/internal/storage"
	"hydrobot/internal/transport"
	"hydrobot/pkg/logx"
)

const (
	defaultWorkers = 2
	handleTimeout  = 15 * time.Second
)

// Request is one parsed command.
type Request struct {
	Msg  *transport.Message
	Root string   // lower-cased command word
	Args []string // remaining words
}

// Arg returns the i-th argument or "".
func (r *Request) Arg(i int) string {
	if i < len(r.Args) {
		return r.Args[i]
	}
	return ""
}

// HandlerFunc returns the reply text; an empty reply sends nothing.
type HandlerFunc func(ctx context.Context, req *Request) string

// StatusFunc reports the runtime state shown by the status command.
type StatusFunc func() Status

// Status is what the status command renders.
type Status struct {
	StartedAt  time.Time
	Monitors   []monitor.Status
	SeenItems  int
	Subjects   int
	Goroutines []supervisor.GoroutineStats
}

type Deps struct {
	Config *config.Manager
	Sender transport.Sender
	Store  storage.Store // optional
	Status StatusFunc    // optional
	Log    logx.Logger
	SelfID string
}

type Router struct {
	deps   Deps
	log    logx.Logger
	routes map[string]HandlerFunc
}

func New(deps Deps) *Router {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{deps: deps, log: log.With(logx.Category("CMD"))}
	r.routes = map[string]HandlerFunc{
		"help":   r.help,
		"帮助":     r.help,
		"rss":    r.rss,
		"steam":  r.steam,
		"reg":    r.reg,
		"hello":  r.hello,
		"status": r.status,
	}
	return r
}

// parse splits text into a request. ok is false for non-commands.
func (r *Router) parse(msg *transport.Message) (*Request, bool) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return nil, false
	}
	root := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Telegram appends "@botname" to commands picked from the menu.
	if i := strings.IndexByte(root, '@'); i > 0 {
		root = root[:i]
	}
	if _, ok := r.routes[root]; !ok {
		return nil, false
	}
	return &Request{Msg: msg, Root: root, Args: fields[1:]}, true
}

// Handle runs the command in msg, if any, and sends the reply to the
// message's group. It reports whether msg was a command.
func (r *Router) Handle(ctx context.Context, msg *transport.Message) bool {
	if msg == nil || (r.deps.SelfID != "" && msg.SenderID == r.deps.SelfID) {
		return false
	}
	req, ok := r.parse(msg)
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	r.log.Info("command", logx.String("group", msg.GroupID), logx.String("sender", msg.SenderID), logx.String("cmd", req.Root), logx.String("args", strings.Join(req.Args, " ")))
	reply := r.routes[req.Root](ctx, req)
	if reply == "" || r.deps.Sender == nil {
		return true
	}
	if err := r.deps.Sender.SendGroupMessage(ctx, msg.GroupID, reply); err != nil {
		r.log.Warn("reply failed", logx.String("group", msg.GroupID), logx.Err(err))
	}
	return true
}

// DispatchLoop handles group messages from updates with a small worker
// pool until ctx is cancelled or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log.With(logx.String("comp", "commands"))))
	for i := 0; i < defaultWorkers; i++ {
		idx := i
		sup.Go0("command.worker."+strconv.Itoa(idx), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case up, ok := <-updates:
					if !ok {
						return
					}
					if up.Kind != transport.UpdateGroupMessage {
						continue
					}
					r.safeHandle(c, idx, up.Message)
				}
			}
		})
	}
	r.log.Info("command dispatcher started", logx.Int("workers", defaultWorkers))
	<-ctx.Done()

	wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = sup.Stop(wctx)
	r.log.Info("command dispatcher stopped")
	return nil
}

func (r *Router) safeHandle(ctx context.Context, worker int, msg *transport.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command", logx.Int("worker", worker), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	r.Handle(ctx, msg)
}

// audit records a configuration change; storage is optional.
func (r *Router) audit(ctx context.Context, req *Request, command, target string, err error) {
	if r.deps.Store == nil {
		return
	}
	e := storage.AuditEntry{
		GroupID:  req.Msg.GroupID,
		SenderID: req.Msg.SenderID,
		Command:  command,
		Target:   target,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := r.deps.Store.AppendAudit(ctx, e); aerr != nil {
		r.log.Debug("audit append failed", logx.Err(aerr))
	}
}
