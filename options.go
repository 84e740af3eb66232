package emerald

import (
	"io"

	"github.com/emerald-lang/emerald/config"
	"github.com/emerald-lang/emerald/internal/logging"
	"github.com/emerald-lang/emerald/vm"
)

// Option configures an Environment.
type Option func(*options)

type options struct {
	cfg      config.Config
	levels   *logging.Levels
	writer   io.Writer
	hasSink  bool
	console  bool
	color    bool
	observer vm.Observer
}

// WithConfig replaces the settings of the environment. Options applied
// later override individual fields.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogWriter sends JSON diagnostics and script output to w. A nil w
// discards everything.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
		o.hasSink = true
		o.console = false
	}
}

// WithConsole renders diagnostics for a terminal on w.
func WithConsole(w io.Writer, color bool) Option {
	return func(o *options) {
		o.writer = w
		o.hasSink = true
		o.console = true
		o.color = color
	}
}

// WithLevels sets the level of each log channel.
func WithLevels(levels logging.Levels) Option {
	return func(o *options) {
		o.levels = &levels
	}
}

// WithThreads sets the size of the compile and call worker pools.
func WithThreads(parsers, runners int) Option {
	return func(o *options) {
		o.cfg.ParserThreads = parsers
		o.cfg.RunnerThreads = runners
	}
}

// WithObserver reports execution events of every runner to observer.
func WithObserver(observer vm.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}
