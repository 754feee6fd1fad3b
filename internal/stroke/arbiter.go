package stroke

import "time"

// Arbiter is the arbitration state shared by both channels' tap classifiers.
// Both classifiers hold the same *Arbiter and mutate it in place during a
// tick, so at most one tap fires per cooldown window and per tick.
//
// An Arbiter is not safe for concurrent use; it belongs to the goroutine that
// runs Engine.Update.
type Arbiter struct {
	cooldown time.Duration
	window   time.Duration

	active   bool // global trigger active until the cooldown elapses
	lastFire time.Time
	fired    bool

	lastFrame  uint64
	frameTaken bool

	reserved     bool
	reservedSide Side
	reservedTill time.Time

	suppressed int
}

// NewArbiter creates arbitration state with the given cooldown and reservation window.
func NewArbiter(cooldown, reservationWindow time.Duration) *Arbiter {
	return &Arbiter{cooldown: cooldown, window: reservationWindow}
}

// expire clears the global trigger once the cooldown has elapsed and drops a
// reservation whose window has passed.
func (a *Arbiter) expire(now time.Time) {
	if a.active && now.Sub(a.lastFire) >= a.cooldown {
		a.active = false
	}
	if a.reserved && !now.Before(a.reservedTill) {
		a.reserved = false
	}
}

// cooldownPassed reports whether the last fire is at least one cooldown ago.
func (a *Arbiter) cooldownPassed(now time.Time) bool {
	return !a.fired || now.Sub(a.lastFire) >= a.cooldown
}

// reserve gives side first claim on the next fire, unless someone already holds it.
func (a *Arbiter) reserve(side Side, now time.Time) {
	if a.reserved {
		return
	}
	a.reserved = true
	a.reservedSide = side
	a.reservedTill = now.Add(a.window)
}

// mayFire reports whether side is allowed to fire under the current reservation.
func (a *Arbiter) mayFire(side Side) bool {
	return !a.reserved || a.reservedSide == side
}

// claimFrame takes the single fire slot for frame. A second claim in the same
// frame is refused and counted.
func (a *Arbiter) claimFrame(frame uint64) bool {
	if a.frameTaken && a.lastFrame == frame {
		a.suppressed++
		return false
	}
	a.frameTaken = true
	a.lastFrame = frame
	return true
}

// fire records a global fire at now for frame. It returns false when another
// channel already fired in the same frame.
func (a *Arbiter) fire(frame uint64, now time.Time) bool {
	if !a.claimFrame(frame) {
		return false
	}
	a.lastFire = now
	a.fired = true
	a.active = true
	a.reserved = false
	return true
}

// Active reports whether the global trigger is still within its cooldown.
func (a *Arbiter) Active() bool { return a.active }

// Reservation returns the side currently holding the reservation.
func (a *Arbiter) Reservation() (Side, bool) {
	return a.reservedSide, a.reserved
}

// Suppressed counts fire attempts refused because another channel already
// fired in the same tick.
func (a *Arbiter) Suppressed() int { return a.suppressed }
