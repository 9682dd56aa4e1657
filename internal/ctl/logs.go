package ctl

// LogsOptions configures the logs command.
type LogsOptions struct {
	JSON bool
}

// Logs streams the daemon's log events live. It is watch filtered to log
// lines and recording changes.
func Logs(baseURL string, opts LogsOptions) error {
	return Watch(baseURL, WatchOptions{
		Filter: []string{"log", "logging"},
		JSON:   opts.JSON,
	})
}
