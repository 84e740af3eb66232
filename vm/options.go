package vm

import (
	"time"

	"github.com/emerald-lang/emerald/config"
	"github.com/emerald-lang/emerald/internal/logging"
)

// Option is a configuration function for a Machine.
type Option func(*Machine)

// WithConfig replaces the machine's settings. Later options override
// individual fields.
func WithConfig(cfg config.Config) Option {
	return func(m *Machine) {
		m.cfg = cfg
	}
}

// WithThreads sets the size of the parser and runner pools. Values below 1
// are ignored.
func WithThreads(parsers, runners int) Option {
	return func(m *Machine) {
		if parsers > 0 {
			m.cfg.ParserThreads = parsers
		}
		if runners > 0 {
			m.cfg.RunnerThreads = runners
		}
	}
}

// WithSinks sets the loggers for compile diagnostics, runtime diagnostics
// and script output.
func WithSinks(sinks logging.Sinks) Option {
	return func(m *Machine) {
		m.sinks = sinks
		m.sinksSet = true
	}
}

// WithSweepInterval sets how often unreferenced heap cells are reclaimed.
func WithSweepInterval(interval time.Duration) Option {
	return func(m *Machine) {
		m.cfg.SweepInterval = interval
	}
}

// WithGrammar selects a grammar description file instead of the embedded
// grammar. Its parse table is cached under cacheDir when that is not empty.
func WithGrammar(path, cacheDir string) Option {
	return func(m *Machine) {
		m.cfg.Grammar = path
		m.cfg.CacheDir = cacheDir
	}
}

// WithObserver sets an observer for execution events on every runner.
// Observer methods are called synchronously on the runner goroutines, so
// implementations should be fast and safe for concurrent use. Returning
// false from any observer method aborts the current call.
func WithObserver(observer Observer) Option {
	return func(m *Machine) {
		m.observer = observer
	}
}

// WithoutIntrinsics starts the machine with an empty symbol table.
func WithoutIntrinsics() Option {
	return func(m *Machine) {
		m.noIntrinsics = true
	}
}
