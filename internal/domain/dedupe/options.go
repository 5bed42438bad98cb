package dedupe

// Option configures a deduper.
type Option func(*window)

// WithMaxSize sets how many ids are remembered. Zero or less remembers
// every id.
func WithMaxSize(maxSize int) Option {
	return func(d *window) {
		d.maxSize = maxSize
	}
}
