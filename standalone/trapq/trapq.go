// Package trapq implements the trapezoidal motion queue: an ordered
// sequence of move segments, each carrying a piecewise accel/cruise/decel
// time-parameterised distance function.
//
// The active and history lists are modelled the way the timer wheel
// models its own ordered list (core/scheduler.go): intrusive,
// singly-linked, walked front to back. Ownership is rooted in a
// fixed-size pool and the "pointers" are integer handles into it.
package trapq

import "errors"

// PoolSize bounds the number of live segments (active + history) across
// both lists. A single motion stream can have many in-flight segments
// between commit and retirement, so the arena is sized well above the
// lookahead depth.
const PoolSize = 64

var ErrPoolExhausted = errors.New("trapq: segment pool exhausted")

// Segment is one committed trapezoidal move. Position and direction
// are 4D (X,Y,Z,E) so extruder distance contributes to arc length.
type Segment struct {
	StartTime float64 // seconds
	AccelT    float64
	CruiseT   float64
	DecelT    float64

	StartV  float64
	CruiseV float64
	EndV    float64
	Accel   float64 // magnitude, phase-independent sign handled by StartV/CruiseV ordering
	Decel   float64

	StartPos [4]float64
	Dir      [4]float64 // unit vector

	next int32 // pool index of next segment in whichever list holds this one, -1 if none
}

// Duration is the total time the segment spans.
func (s *Segment) Duration() float64 {
	return s.AccelT + s.CruiseT + s.DecelT
}

// EndTime is StartTime + Duration.
func (s *Segment) EndTime() float64 {
	return s.StartTime + s.Duration()
}

// distanceAt returns the arc-length travelled from the segment start
// at local time t (0 <= t <= Duration()), per the three-phase
// trapezoid: s = v0*t + 1/2*a*t^2 within each phase.
func (s *Segment) distanceAt(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t <= s.AccelT {
		return s.StartV*t + 0.5*s.Accel*t*t
	}
	accelDist := s.StartV*s.AccelT + 0.5*s.Accel*s.AccelT*s.AccelT
	t -= s.AccelT
	if t <= s.CruiseT {
		return accelDist + s.CruiseV*t
	}
	cruiseDist := accelDist + s.CruiseV*s.CruiseT
	t -= s.CruiseT
	if t > s.DecelT {
		t = s.DecelT
	}
	return cruiseDist + s.CruiseV*t - 0.5*s.Decel*t*t
}

// velocityAt returns the instantaneous speed at local time t, used by
// the iterative solver as the Newton-Raphson derivative.
func (s *Segment) velocityAt(t float64) float64 {
	if t <= 0 {
		return s.StartV
	}
	if t <= s.AccelT {
		return s.StartV + s.Accel*t
	}
	t -= s.AccelT
	if t <= s.CruiseT {
		return s.CruiseV
	}
	t -= s.CruiseT
	if t > s.DecelT {
		t = s.DecelT
	}
	return s.CruiseV - s.Decel*t
}

// PositionAt4 returns the 4D position at global time t within this
// segment's span (caller must ensure t falls within [StartTime, EndTime()]).
func (s *Segment) PositionAt4(t float64) [4]float64 {
	dist := s.distanceAt(t - s.StartTime)
	var pos [4]float64
	for i := 0; i < 4; i++ {
		pos[i] = s.StartPos[i] + s.Dir[i]*dist
	}
	return pos
}

// AxisPositionAt returns the single-axis projected position at global
// time t, the quantity the iterative solver roots against.
func (s *Segment) AxisPositionAt(axis int, t float64) float64 {
	return s.StartPos[axis] + s.Dir[axis]*s.distanceAt(t-s.StartTime)
}

// AxisVelocityAt returns the single-axis projected velocity at global
// time t, used as the Newton-Raphson derivative.
func (s *Segment) AxisVelocityAt(axis int, t float64) float64 {
	return s.Dir[axis] * s.velocityAt(t-s.StartTime)
}

// Handle identifies a live segment in a Queue. noHandle (-1) is never
// valid; a Handle remains meaningful only until the segment it names is
// freed via FreeBefore.
type Handle int32

const noHandle Handle = -1

// Queue is one axis-independent trapq: an arena of segments plus two
// intrusive lists (active, history) threaded through it by index.
type Queue struct {
	arena    [PoolSize]Segment
	used     [PoolSize]bool
	freeHead int32 // index of first free slot via arena[i].next chain, -1 if none

	activeHead int32
	activeTail int32
	histHead   int32
	histTail   int32
}

// New returns an empty, ready-to-use queue.
func New() *Queue {
	q := &Queue{}
	q.activeHead, q.activeTail = -1, -1
	q.histHead, q.histTail = -1, -1
	for i := range q.arena {
		q.arena[i].next = int32(i) + 1
	}
	q.arena[PoolSize-1].next = -1
	q.freeHead = 0
	return q
}

func (q *Queue) alloc() (int32, error) {
	if q.freeHead < 0 {
		return -1, ErrPoolExhausted
	}
	idx := q.freeHead
	q.freeHead = q.arena[idx].next
	q.used[idx] = true
	return idx, nil
}

func (q *Queue) release(idx int32) {
	q.used[idx] = false
	q.arena[idx].next = q.freeHead
	q.freeHead = idx
}

// Append builds a new segment from the given parameters and appends it
// to the tail of the active list. Precondition (caller-enforced):
// startTime equals the previous active segment's end time when the
// active list is non-empty.
func (q *Queue) Append(startTime, accelT, cruiseT, decelT float64, startPos, dir [4]float64, startV, cruiseV, endV, accel, decel float64) (Handle, error) {
	idx, err := q.alloc()
	if err != nil {
		return noHandle, err
	}
	seg := &q.arena[idx]
	*seg = Segment{
		StartTime: startTime,
		AccelT:    accelT,
		CruiseT:   cruiseT,
		DecelT:    decelT,
		StartV:    startV,
		CruiseV:   cruiseV,
		EndV:      endV,
		Accel:     accel,
		Decel:     decel,
		StartPos:  startPos,
		Dir:       dir,
		next:      -1,
	}
	if q.activeTail < 0 {
		q.activeHead = idx
	} else {
		q.arena[q.activeTail].next = idx
	}
	q.activeTail = idx
	return Handle(idx), nil
}

// Get returns the segment named by h. ok is false if h does not name a
// currently live segment.
func (q *Queue) Get(h Handle) (*Segment, bool) {
	if h < 0 || int(h) >= PoolSize || !q.used[h] {
		return nil, false
	}
	return &q.arena[h], true
}

// FirstActive returns the head of the active list, oldest first.
func (q *Queue) FirstActive() (Handle, bool) {
	if q.activeHead < 0 {
		return noHandle, false
	}
	return Handle(q.activeHead), true
}

// LastActive returns the tail of the active list, newest committed
// segment.
func (q *Queue) LastActive() (Handle, bool) {
	if q.activeTail < 0 {
		return noHandle, false
	}
	return Handle(q.activeTail), true
}

// NextActive returns the segment following h in the active list.
func (q *Queue) NextActive(h Handle) (Handle, bool) {
	seg, ok := q.Get(h)
	if !ok || seg.next < 0 {
		return noHandle, false
	}
	return Handle(seg.next), true
}

// PositionAt searches active then history for the segment covering t
// and returns the 4D position there. If t is before every segment, the
// earliest segment's start position is returned; if after every
// segment, the latest segment's end position is returned.
func (q *Queue) PositionAt(t float64) ([4]float64, bool) {
	for h, ok := q.FirstActive(); ok; h, ok = q.NextActive(h) {
		seg := &q.arena[h]
		if t >= seg.StartTime && t <= seg.EndTime() {
			return seg.PositionAt4(t), true
		}
	}
	// search history, newest first is not tracked; walk oldest to newest
	for idx := q.histHead; idx >= 0; idx = q.arena[idx].next {
		seg := &q.arena[idx]
		if t >= seg.StartTime && t <= seg.EndTime() {
			return seg.PositionAt4(t), true
		}
	}
	earliest, latest := q.histHead, q.activeTail
	if earliest < 0 {
		earliest = q.activeHead
	}
	if latest < 0 {
		latest = q.histTail
	}
	if earliest >= 0 && t < q.arena[earliest].StartTime {
		return q.arena[earliest].StartPos, true
	}
	if latest >= 0 {
		last := &q.arena[latest]
		return last.PositionAt4(last.EndTime()), true
	}
	return [4]float64{}, false
}

// FinalizeBefore moves every active segment whose end time is <= t from
// the active list to the history list, preserving order.
func (q *Queue) FinalizeBefore(t float64) {
	for q.activeHead >= 0 {
		seg := &q.arena[q.activeHead]
		if seg.EndTime() > t {
			break
		}
		idx := q.activeHead
		q.activeHead = seg.next
		if q.activeHead < 0 {
			q.activeTail = -1
		}
		seg.next = -1
		if q.histTail < 0 {
			q.histHead = idx
		} else {
			q.arena[q.histTail].next = idx
		}
		q.histTail = idx
	}
}

// FreeBefore drops history segments whose end time is < t, returning
// their slots to the pool.
func (q *Queue) FreeBefore(t float64) {
	for q.histHead >= 0 {
		seg := &q.arena[q.histHead]
		if seg.EndTime() >= t {
			break
		}
		idx := q.histHead
		q.histHead = seg.next
		if q.histHead < 0 {
			q.histTail = -1
		}
		q.release(idx)
	}
}
