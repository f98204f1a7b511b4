package timer

import (
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) advance(d time.Duration) time.Time {
	f.now = f.now.Add(d)
	return f.now
}

func TestOneShotFiresOnceOnly(t *testing.T) {
	fc := &fakeClock{now: time.Unix(0, 0)}
	w := New(fc.Now)

	fires := 0
	w.OneShot(10*time.Millisecond, func() { fires++ })

	fc.advance(20 * time.Millisecond)
	w.RunDue(fc.now)
	fc.advance(20 * time.Millisecond)
	w.RunDue(fc.now)

	if fires != 1 {
		t.Fatalf("one-shot timer fired %d times, want 1", fires)
	}
	if w.Len() != 0 {
		t.Fatalf("one-shot timer should be removed after firing, Len()=%d", w.Len())
	}
}

func TestPeriodicTimerReschedulesWithoutCatchUp(t *testing.T) {
	fc := &fakeClock{now: time.Unix(0, 0)}
	w := New(fc.Now)

	fires := 0
	w.Schedule(10*time.Millisecond, func() { fires++ })

	// Jump far past several intervals worth of time in one go: with
	// no catch-up, this still only fires once,
	// since next_fire = now + interval uses the fire-time now, not a
	// running schedule.
	fc.advance(1000 * time.Millisecond)
	w.RunDue(fc.now)

	if fires != 1 {
		t.Fatalf("periodic timer fired %d times in one overdue RunDue, want 1 (no catch-up)", fires)
	}
}

func TestDestroyFromOwnCallbackIsSafe(t *testing.T) {
	fc := &fakeClock{now: time.Unix(0, 0)}
	w := New(fc.Now)

	fires := 0
	var self *Timer
	self = w.Schedule(5*time.Millisecond, func() {
		fires++
		w.Destroy(self)
	})
	_ = self

	for i := 0; i < 5; i++ {
		fc.advance(10 * time.Millisecond)
		w.RunDue(fc.now)
	}

	if fires != 1 {
		t.Fatalf("timer destroyed from its own callback fired %d times, want exactly 1", fires)
	}
	if w.Len() != 0 {
		t.Fatalf("destroyed timer should be swept from the wheel, Len()=%d", w.Len())
	}
}

func TestRunDueSleepClampedToBounds(t *testing.T) {
	fc := &fakeClock{now: time.Unix(0, 0)}
	w := New(fc.Now)

	w.Schedule(1*time.Microsecond, func() {})
	// Immediately due: next reschedule is ~1us away, clamped up to DelayMin.
	d := w.RunDue(fc.now)
	if d < DelayMin || d > DelayMax {
		t.Fatalf("RunDue returned %s, want within [%s, %s]", d, DelayMin, DelayMax)
	}

	w2 := New(fc.Now)
	w2.Schedule(10*time.Second, func() {})
	d2 := w2.RunDue(fc.now)
	if d2 != DelayMax {
		t.Fatalf("RunDue with a far-future timer = %s, want clamp to DelayMax %s", d2, DelayMax)
	}
}

func TestRunDueNoTimersReturnsDelayMax(t *testing.T) {
	fc := &fakeClock{now: time.Unix(0, 0)}
	w := New(fc.Now)
	if d := w.RunDue(fc.now); d != DelayMax {
		t.Fatalf("RunDue on empty wheel = %s, want DelayMax", d)
	}
}
