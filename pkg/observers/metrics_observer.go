package observers

import (
	"sync"
	"time"

	"github.com/anggasct/phasesignal"
)

// MetricsObserver collects metrics about signal execution
type MetricsObserver struct {
	phaseVisits      map[phasesignal.Phase]int
	phaseTimeSpent   map[phasesignal.Phase]time.Duration
	transitionCounts map[string]int
	maxOvershoot     time.Duration
	waitersBlocked   int
	waitersReleased  int
	waitersAbandoned int
	errorCount       int
	mutex            sync.RWMutex
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	o := &MetricsObserver{}
	o.Reset()
	return o
}

// OnTransition records transition metrics. The time held in t.From is
// credited to that phase; t.To counts as a visit.
func (o *MetricsObserver) OnTransition(t phasesignal.Transition) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.phaseTimeSpent[t.From] += t.Held
	o.phaseVisits[t.To]++
	o.transitionCounts[t.Key()]++
	if over := t.Overshoot(); over > o.maxOvershoot {
		o.maxOvershoot = over
	}
}

// OnSignalStarted counts the initial phase as a visit
func (o *MetricsObserver) OnSignalStarted(string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.phaseVisits[phasesignal.Red]++
}

// OnSignalStopped implements phasesignal.ExtendedObserver
func (o *MetricsObserver) OnSignalStopped(string, error) {}

// OnWaiterRegistered records a blocked waiter
func (o *MetricsObserver) OnWaiterRegistered(string, phasesignal.Phase) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.waitersBlocked++
}

// OnWaiterReleased records a waiter leaving, released or abandoned
func (o *MetricsObserver) OnWaiterReleased(_ string, _ phasesignal.Phase, err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if err != nil {
		o.waitersAbandoned++
		return
	}
	o.waitersReleased++
}

// OnError records error metrics
func (o *MetricsObserver) OnError(error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.errorCount++
}

// GetPhaseVisitCounts returns the number of times each phase was entered
func (o *MetricsObserver) GetPhaseVisitCounts() map[phasesignal.Phase]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[phasesignal.Phase]int)
	for phase, count := range o.phaseVisits {
		result[phase] = count
	}
	return result
}

// GetPhaseTimeSpent returns the completed time spent in each phase
func (o *MetricsObserver) GetPhaseTimeSpent() map[phasesignal.Phase]time.Duration {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[phasesignal.Phase]time.Duration)
	for phase, d := range o.phaseTimeSpent {
		result[phase] = d
	}
	return result
}

// GetTransitionCounts returns the number of times each transition occurred
func (o *MetricsObserver) GetTransitionCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[string]int)
	for transition, count := range o.transitionCounts {
		result[transition] = count
	}
	return result
}

// GetMaxOvershoot returns the largest time a phase ran past its target
func (o *MetricsObserver) GetMaxOvershoot() time.Duration {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.maxOvershoot
}

// GetWaiterCounts returns blocked, released and abandoned waiter totals
func (o *MetricsObserver) GetWaiterCounts() (blocked, released, abandoned int) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.waitersBlocked, o.waitersReleased, o.waitersAbandoned
}

// GetErrorCount returns the number of errors
func (o *MetricsObserver) GetErrorCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return o.errorCount
}

// Reset resets all metrics
func (o *MetricsObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.phaseVisits = make(map[phasesignal.Phase]int)
	o.phaseTimeSpent = make(map[phasesignal.Phase]time.Duration)
	o.transitionCounts = make(map[string]int)
	o.maxOvershoot = 0
	o.waitersBlocked = 0
	o.waitersReleased = 0
	o.waitersAbandoned = 0
	o.errorCount = 0
}
