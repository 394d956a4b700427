package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind describes the normalized kind of a cadence string.
type Kind int

const (
	KindInterval Kind = iota
	KindCron
)

func (k Kind) String() string {
	if k == KindCron {
		return "cron"
	}
	return "interval"
}

// Parsed is a parsed cadence string.
//
// Supported forms:
//   - Interval duration: "5m", "45s", "1h30m"
//   - Interval HH:MM: "00:05" (5 minutes), "01:30" (90 minutes)
//   - Cron: "*/5 * * * *", "@hourly", "@every 5m"
//
// Optional prefixes "cron:" and "every:" force the interpretation.
type Parsed struct {
	Kind     Kind
	Every    time.Duration
	Cron     string
	Schedule cron.Schedule
	Source   string // "duration" | "hhmm" | "cron"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse parses raw into a schedule.
func Parse(raw string) (Parsed, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Parsed{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	}
	return parseInterval(s)
}

// ParseOrDefault parses raw, falling back to a fixed interval def when raw is empty.
func ParseOrDefault(raw string, def time.Duration) (Parsed, error) {
	if strings.TrimSpace(raw) == "" {
		return Every(def), nil
	}
	return Parse(raw)
}

// Every returns a fixed-interval schedule. cron.Every rounds to whole
// seconds, so sub-second intervals keep a nil Schedule and Next falls back
// to the raw duration.
func Every(d time.Duration) Parsed {
	p := Parsed{Kind: KindInterval, Every: d, Source: "duration"}
	if d >= time.Second {
		p.Schedule = cron.Every(d)
	}
	return p
}

func parseCron(expr string) (Parsed, error) {
	if expr == "" {
		return Parsed{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	sch, err := cronParser.Parse(expr)
	if err != nil {
		return Parsed{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	if sch.Next(time.Now()).IsZero() {
		return Parsed{}, fmt.Errorf("cron schedule %q never fires", expr)
	}
	p := Parsed{Kind: KindCron, Cron: expr, Schedule: sch, Source: "cron"}
	if cd, ok := sch.(cron.ConstantDelaySchedule); ok {
		p.Every = cd.Delay
	}
	return p, nil
}

func parseInterval(v string) (Parsed, error) {
	if v == "" {
		return Parsed{}, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		if err != nil {
			return Parsed{}, err
		}
		p := Every(d)
		p.Source = "hhmm"
		return p, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Parsed{}, fmt.Errorf("invalid schedule %q (use a duration like '5m', HH:MM like '00:05', or cron like '*/5 * * * *')", v)
	}
	if d <= 0 {
		return Parsed{}, fmt.Errorf("interval must be > 0")
	}
	return Every(d), nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// Next returns how long to wait after now before the next tick. A
// schedule with no future activation yields 0.
func (p Parsed) Next(now time.Time) time.Duration {
	if p.Schedule == nil {
		return p.Every
	}
	next := p.Schedule.Next(now)
	if next.IsZero() {
		return 0
	}
	return next.Sub(now)
}

func (p Parsed) String() string {
	if p.Kind == KindCron {
		return p.Cron
	}
	return p.Every.String()
}
