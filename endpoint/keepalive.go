package endpoint

import "time"

// KeepAliveOptions tunes the per-endpoint KEEP_ALIVE cadence, per spec §4.4.
type KeepAliveOptions struct {
	Interval time.Duration
	Timeout  time.Duration
}

const (
	defaultKeepAliveInterval = 5 * time.Second
	defaultKeepAliveTimeout  = 30 * time.Second
)

// WithDefaults validates interval > 0 && interval < timeout, substituting
// the defaults when either tunable is out of range.
func (o KeepAliveOptions) WithDefaults() KeepAliveOptions {
	if o.Interval <= 0 || o.Timeout <= 0 || o.Interval >= o.Timeout {
		return KeepAliveOptions{Interval: defaultKeepAliveInterval, Timeout: defaultKeepAliveTimeout}
	}
	return o
}
