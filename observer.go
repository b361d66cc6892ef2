package phasesignal

import (
	"fmt"
	"sync"
)

// Observer represents an entity that observes signal transitions
type Observer interface {
	// OnTransition is called by the cycling loop after every toggle
	OnTransition(t Transition)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnSignalStarted is called when the cycling loop begins
	OnSignalStarted(signal string)

	// OnSignalStopped is called when the cycling loop exits
	OnSignalStopped(signal string, reason error)

	// OnWaiterRegistered is called when a waiter starts blocking for a phase
	OnWaiterRegistered(signal string, phase Phase)

	// OnWaiterReleased is called when a registered waiter returns
	OnWaiterReleased(signal string, phase Phase, err error)

	// OnError is called when an observer fails
	OnError(err error)
}

// BaseObserver provides a default implementation with no-op methods
type BaseObserver struct{}

// OnTransition implements the required Observer method
func (o *BaseObserver) OnTransition(t Transition) {}

// OnSignalStarted implements the optional ExtendedObserver method
func (o *BaseObserver) OnSignalStarted(signal string) {}

// OnSignalStopped implements the optional ExtendedObserver method
func (o *BaseObserver) OnSignalStopped(signal string, reason error) {}

// OnWaiterRegistered implements the optional ExtendedObserver method
func (o *BaseObserver) OnWaiterRegistered(signal string, phase Phase) {}

// OnWaiterReleased implements the optional ExtendedObserver method
func (o *BaseObserver) OnWaiterReleased(signal string, phase Phase, err error) {}

// OnError implements the optional ExtendedObserver method
func (o *BaseObserver) OnError(err error) {}

// ObserverManager manages a collection of observers
type ObserverManager struct {
	mutex     sync.RWMutex
	observers []Observer
}

// NewObserverManager creates a new observer manager
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]Observer, 0),
	}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	if observer == nil {
		return
	}
	om.mutex.Lock()
	defer om.mutex.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()

	for i, obs := range om.observers {
		if obs == observer {
			om.observers = append(om.observers[:i], om.observers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered observers
func (om *ObserverManager) Count() int {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	return len(om.observers)
}

func (om *ObserverManager) snapshot() []Observer {
	om.mutex.RLock()
	defer om.mutex.RUnlock()

	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)
	return observers
}

// NotifyTransition notifies all observers of a transition
func (om *ObserverManager) NotifyTransition(t Transition) {
	for _, observer := range om.snapshot() {
		om.guard("OnTransition", func() { observer.OnTransition(t) })
	}
}

// NotifySignalStarted notifies extended observers that a loop has started
func (om *ObserverManager) NotifySignalStarted(signal string) {
	om.forExtended("OnSignalStarted", func(o ExtendedObserver) { o.OnSignalStarted(signal) })
}

// NotifySignalStopped notifies extended observers that a loop has exited
func (om *ObserverManager) NotifySignalStopped(signal string, reason error) {
	om.forExtended("OnSignalStopped", func(o ExtendedObserver) { o.OnSignalStopped(signal, reason) })
}

// NotifyWaiterRegistered notifies extended observers of a new waiter
func (om *ObserverManager) NotifyWaiterRegistered(signal string, phase Phase) {
	om.forExtended("OnWaiterRegistered", func(o ExtendedObserver) { o.OnWaiterRegistered(signal, phase) })
}

// NotifyWaiterReleased notifies extended observers that a waiter returned
func (om *ObserverManager) NotifyWaiterReleased(signal string, phase Phase, err error) {
	om.forExtended("OnWaiterReleased", func(o ExtendedObserver) { o.OnWaiterReleased(signal, phase, err) })
}

// NotifyError notifies extended observers of an error. A panic in OnError
// is dropped.
func (om *ObserverManager) NotifyError(err error) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			func() {
				defer func() { _ = recover() }()
				extObs.OnError(err)
			}()
		}
	}
}

func (om *ObserverManager) forExtended(method string, fn func(ExtendedObserver)) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			om.guard(method, func() { fn(extObs) })
		}
	}
}

// guard runs fn and reports an observer panic to every extended observer
// through NotifyError, so one faulty observer never stops the cycling loop
func (om *ObserverManager) guard(method string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			om.NotifyError(NewSignalError(ErrCodeObserverPanic, "", method, fmt.Sprintf("observer panic: %v", r)))
		}
	}()
	fn()
}
