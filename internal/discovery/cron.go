package discovery

import (
	"time"

	"github.com/robfig/cron/v3"
)

// refreshParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var refreshParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextRefresh parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextRefresh(expr string) time.Duration {
	sched, err := refreshParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}
