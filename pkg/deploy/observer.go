package deploy

import "time"

// Observer is notified as a deployment progresses.
type Observer interface {
	OnTransition(runtimeName string, t Transition)
	// OnPoll is called after every status read while waiting.
	OnPoll(state State, attempt int, status string, elapsed time.Duration)
	OnFinish(res *Result, err error)
}

// NopObserver implements Observer with no-ops. Embed it to implement only
// the callbacks you need.
type NopObserver struct{}

func (NopObserver) OnTransition(string, Transition)          {}
func (NopObserver) OnPoll(State, int, string, time.Duration) {}
func (NopObserver) OnFinish(*Result, error)                  {}

type observers []Observer

func (o observers) transition(name string, t Transition) {
	for _, ob := range o {
		ob.OnTransition(name, t)
	}
}

func (o observers) poll(s State, attempt int, status string, elapsed time.Duration) {
	for _, ob := range o {
		ob.OnPoll(s, attempt, status, elapsed)
	}
}

func (o observers) finish(res *Result, err error) {
	for _, ob := range o {
		ob.OnFinish(res, err)
	}
}
