package clock

import (
	"reflect"
	"testing"
	"time"
)

func TestAdvance_FiresInTimeThenScheduleOrder(t *testing.T) {
	c := New()
	var got []string
	c.AfterFunc(3*time.Second, func() { got = append(got, "c") })
	c.AfterFunc(1*time.Second, func() { got = append(got, "a") })
	c.AfterFunc(1*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(10*time.Second, func() { got = append(got, "late") })

	if n := c.Advance(5 * time.Second); n != 3 {
		t.Fatalf("fired: got %d want 3", n)
	}
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("order: got %v", got)
	}
	if c.Now() != 5*time.Second {
		t.Fatalf("now: got %v want 5s", c.Now())
	}
	if c.Pending() != 1 {
		t.Fatalf("pending: got %d want 1", c.Pending())
	}
}

func TestAdvance_CallbackSeesItsOwnTime(t *testing.T) {
	c := New()
	var at time.Duration
	c.AfterFunc(2*time.Second, func() { at = c.Now() })
	c.Advance(7 * time.Second)
	if at != 2*time.Second {
		t.Fatalf("callback time: got %v want 2s", at)
	}
}

func TestAdvance_ChainedCallbacksInsideWindow(t *testing.T) {
	c := New()
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)
	c.Advance(5 * time.Second)
	if count != 5 {
		t.Fatalf("chained ticks: got %d want 5", count)
	}
}

func TestCancel(t *testing.T) {
	c := New()
	fired := false
	id := c.AfterFunc(time.Second, func() { fired = true })
	if !c.Cancel(id) {
		t.Fatalf("expected cancel to succeed")
	}
	if c.Cancel(id) {
		t.Fatalf("expected second cancel to report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatalf("cancelled callback fired")
	}
}

func TestBank_DebitClampsAtZero(t *testing.T) {
	b := NewBank(30 * time.Second)
	b.Open("p1")
	if got := b.Debit("p1", 20*time.Second); got != 20*time.Second {
		t.Fatalf("debit: got %v", got)
	}
	if got := b.Debit("p1", 20*time.Second); got != 10*time.Second {
		t.Fatalf("clamped debit: got %v want 10s", got)
	}
	if b.Balance("p1") != 0 {
		t.Fatalf("balance: got %v want 0", b.Balance("p1"))
	}
	b.Open("p1")
	if b.Balance("p1") != 0 {
		t.Fatalf("re-open must not refill the bank")
	}
}
