package listener

import "github.com/okian/slipsync/pkg/logger"

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the listener logger.
func WithLogger(l logger.Logger) Option {
	return func(li *Listener) {
		if l != nil {
			li.logger = l
		}
	}
}

// WithWindow shares an existing window target.
func WithWindow(t *EventTarget) Option {
	return func(li *Listener) {
		if t != nil {
			li.window = t
		}
	}
}
