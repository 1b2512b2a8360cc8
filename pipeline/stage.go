package pipeline

import "time"

// Stage identifies a pass of the per-frame pipeline.
type Stage int

// Stages in execution order.
const (
	StageSimulate Stage = iota
	StageFade
	StageProject
	StageComposite
)

var stageNames = [...]string{"simulate", "fade", "project", "composite"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// phase is the position of the frame state machine.
type phase int

const (
	phaseIdle phase = iota // between frames
	phaseBegun             // pointer and toggles snapshotted
	phaseSimulated
	phaseFaded
	phaseProjected
)

// expects maps each stage to the phase it must start from.
var expects = [...]phase{
	StageSimulate:  phaseBegun,
	StageFade:      phaseSimulated,
	StageProject:   phaseFaded,
	StageComposite: phaseProjected,
}

// StageEvent describes one completed pass.
type StageEvent struct {
	Frame    uint64
	Stage    Stage
	Read     string // buffer name read by the pass
	Write    string // buffer name written, empty for the compositor
	Duration time.Duration
}

// Observer receives an event after every completed pass.
type Observer interface {
	OnStage(ev StageEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev StageEvent)

// OnStage calls f.
func (f ObserverFunc) OnStage(ev StageEvent) { f(ev) }

// PhaseTimer records per-pass timings. telemetry.PerfCollector implements it.
type PhaseTimer interface {
	StartTick()
	StartPhase(name string)
	EndTick()
}
