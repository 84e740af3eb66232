package vm

import "github.com/emerald-lang/emerald/op"

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every instruction.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every N instructions.
	StepSampled

	// StepOnLine calls OnStep when the source line changes.
	StepOnLine
)

// ObserverConfig specifies what events an observer wants to receive.
type ObserverConfig struct {
	StepMode StepMode

	// SampleInterval is the number of instructions between OnStep calls
	// when StepMode is StepSampled. Values <= 0 are treated as 1.
	SampleInterval int

	ObserveCalls   bool
	ObserveReturns bool
}

// NewObserverConfig creates a config that also observes calls and returns.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
	}
}

func normalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer receives execution events from a runner. Methods are called
// synchronously on the runner's goroutine; an observer shared by several
// runners must be safe for concurrent use. Returning false aborts the
// current call.
type Observer interface {
	Config() ObserverConfig
	OnStep(event StepEvent) bool
	OnCall(event CallEvent) bool
	OnReturn(event ReturnEvent) bool
}

// StepEvent describes one instruction about to execute.
type StepEvent struct {
	Function   string
	IP         int
	Opcode     op.Code
	OpcodeName string
	Line       int
	FrameDepth int
}

// CallEvent describes a call into a script, host or intrinsic function.
type CallEvent struct {
	Function   string
	ArgCount   int
	Line       int // line of the call site, 0 for calls from the host
	FrameDepth int
}

// ReturnEvent describes a script function returning.
type ReturnEvent struct {
	Function   string
	Line       int
	FrameDepth int
}

// NoOpObserver does nothing. Embed it to implement only some methods.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig    { return NewObserverConfig(StepAll) }
func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

var _ Observer = NoOpObserver{}

// observerState tracks the step filter of one runner.
type observerState struct {
	observer Observer
	cfg      ObserverConfig
	count    int
	lastFn   string
	lastLine int
}

func newObserverState(o Observer) *observerState {
	if o == nil {
		return nil
	}
	return &observerState{observer: o, cfg: normalizeConfig(o.Config())}
}

func (s *observerState) step(event StepEvent) bool {
	switch s.cfg.StepMode {
	case StepNone:
		return true
	case StepSampled:
		s.count++
		if s.count < s.cfg.SampleInterval {
			return true
		}
		s.count = 0
	case StepOnLine:
		if event.Line == s.lastLine && event.Function == s.lastFn {
			return true
		}
		s.lastLine, s.lastFn = event.Line, event.Function
	}
	return s.observer.OnStep(event)
}

func (s *observerState) call(event CallEvent) bool {
	if !s.cfg.ObserveCalls {
		return true
	}
	return s.observer.OnCall(event)
}

func (s *observerState) ret(event ReturnEvent) bool {
	if !s.cfg.ObserveReturns {
		return true
	}
	return s.observer.OnReturn(event)
}
