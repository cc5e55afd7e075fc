// Trigger synchronization for multi-axis homing: a fan-out of callbacks
// fired once on the first trigger, with an expiry fallback, driven by the
// endstop watcher and the homing timeout.
package core

// TriggerSync coordinates a homing episode across one or more endstops: the
// first trigger (from any participating endstop) or the expiry timer fires
// every registered signal exactly once.
type TriggerSync struct {
	canTrigger    bool
	triggerReason uint8
	expireReason  uint8
	expireTimer   Timer
	signals       []func(reason uint8)
}

// NewTriggerSync creates an armed trigger-sync coordinator.
func NewTriggerSync() *TriggerSync {
	ts := &TriggerSync{canTrigger: true}
	ts.expireTimer.Handler = ts.expireEvent
	return ts
}

// AddSignal registers a callback invoked (at most once) when this
// coordinator triggers, either from DoTrigger or from timeout expiry.
func (ts *TriggerSync) AddSignal(cb func(reason uint8)) {
	ts.signals = append(ts.signals, cb)
}

// ArmTimeout schedules the expiry deadline; if nothing has triggered this
// coordinator by deadline, it auto-triggers with the configured expire
// reason.
func (ts *TriggerSync) ArmTimeout(deadline uint32, expireReason uint8) {
	ts.expireReason = expireReason
	ts.expireTimer.WakeTime = deadline
	ScheduleTimer(&ts.expireTimer)
}

// DoTrigger fires the coordinator. Only the first caller (whichever endstop
// asserts first, or the expiry timer) has any effect.
func (ts *TriggerSync) DoTrigger(reason uint8) {
	state := disableInterrupts()
	if !ts.canTrigger {
		restoreInterrupts(state)
		return
	}
	ts.canTrigger = false
	ts.triggerReason = reason
	restoreInterrupts(state)

	CancelTimer(&ts.expireTimer)
	for _, cb := range ts.signals {
		if cb != nil {
			cb(reason)
		}
	}
}

// Triggered reports whether this coordinator has already fired, and why.
func (ts *TriggerSync) Triggered() (bool, uint8) {
	return !ts.canTrigger, ts.triggerReason
}

func (ts *TriggerSync) expireEvent(t *Timer) uint8 {
	ts.DoTrigger(ts.expireReason)
	return SF_DONE
}
