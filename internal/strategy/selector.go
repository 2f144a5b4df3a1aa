package strategy

import (
	"fmt"
	"sync/atomic"
)

// UnknownStrategyError is returned for names missing from the registry
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown strategy %q", e.Name)
}

// Selector holds the registered evaluators and the one used for live trading
type Selector struct {
	evaluators map[string]Evaluator
	names      []string
	active     atomic.Pointer[string]
}

// NewSelector registers evaluators in order. The first one starts active.
func NewSelector(evaluators ...Evaluator) *Selector {
	s := &Selector{evaluators: make(map[string]Evaluator, len(evaluators))}
	for _, e := range evaluators {
		if _, exists := s.evaluators[e.Name()]; exists {
			continue
		}
		s.evaluators[e.Name()] = e
		s.names = append(s.names, e.Name())
	}
	if len(s.names) > 0 {
		first := s.names[0]
		s.active.Store(&first)
	}
	return s
}

// SetActive makes name the active strategy and returns the previous one
func (s *Selector) SetActive(name string) (string, error) {
	if _, ok := s.evaluators[name]; !ok {
		return "", &UnknownStrategyError{Name: name}
	}
	previous := s.active.Swap(&name)
	if previous == nil {
		return "", nil
	}
	return *previous, nil
}

// ActiveName returns the active strategy name
func (s *Selector) ActiveName() string {
	if name := s.active.Load(); name != nil {
		return *name
	}
	return ""
}

// Active returns the active evaluator
func (s *Selector) Active() Evaluator {
	return s.evaluators[s.ActiveName()]
}

// Lookup resolves a registered evaluator by name
func (s *Selector) Lookup(name string) (Evaluator, error) {
	e, ok := s.evaluators[name]
	if !ok {
		return nil, &UnknownStrategyError{Name: name}
	}
	return e, nil
}

// Names returns the registered names in registration order
func (s *Selector) Names() []string {
	return append([]string(nil), s.names...)
}
