package daemon

import "time"

// Status is a snapshot of daemon health. No request kind returns it: the
// `ping` and `daemon status` commands report daemonclient.Status. Grounded
// on the teacher's daemonclient.Status shape (uptime plus the three
// on-disk paths), generalized from turbod's log/pid/sock trio to this
// daemon's equivalents.
type Status struct {
	UptimeMs    int64  `json:"uptime_ms"`
	LogFile     string `json:"log_file"`
	PidFile     string `json:"pid_file"`
	SocketFile  string `json:"socket_file"`
	WatchActive bool   `json:"watch_active"`
}

func (d *Daemon) status() Status {
	return Status{
		UptimeMs:    time.Since(d.startedAt).Milliseconds(),
		LogFile:     d.logPath,
		PidFile:     d.pidPath,
		SocketFile:  d.sockPath,
		WatchActive: d.watcher != nil && d.watchRunning,
	}
}
