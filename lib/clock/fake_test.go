// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	if got, want := clock.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(time.Second)
	select {
	case fired := <-channel:
		if want := epoch.Add(3 * time.Second); !fired.Equal(want) {
			t.Errorf("fired at %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeClockAfterZero(t *testing.T) {
	clock := Fake(epoch)
	select {
	case <-clock.After(0):
	default:
		t.Fatal("After(0) should be ready immediately")
	}
	if clock.Pending() != 0 {
		t.Errorf("After(0) registered a timer")
	}
}

func TestFakeClockAfterFuncOrdering(t *testing.T) {
	clock := Fake(epoch)
	var order []string
	clock.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	clock.AfterFunc(time.Second, func() { order = append(order, "first") })
	clock.AfterFunc(2*time.Second, func() { order = append(order, "third") })

	clock.Advance(5 * time.Second)

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("fired %v, want %v", order, want)
		}
	}
}

func TestFakeClockAfterFuncSeesDeadline(t *testing.T) {
	clock := Fake(epoch)
	var observed time.Time
	clock.AfterFunc(time.Second, func() { observed = clock.Now() })

	clock.Advance(10 * time.Second)

	if want := epoch.Add(time.Second); !observed.Equal(want) {
		t.Errorf("callback observed %v, want %v", observed, want)
	}
	if want := epoch.Add(10 * time.Second); !clock.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", clock.Now(), want)
	}
}

func TestFakeClockStop(t *testing.T) {
	clock := Fake(epoch)
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop on a pending timer should return true")
	}
	if timer.Stop() {
		t.Error("second Stop should return false")
	}
	clock.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFakeClockReset(t *testing.T) {
	clock := Fake(epoch)
	fireCount := 0
	timer := clock.AfterFunc(3*time.Second, func() { fireCount++ })

	clock.Advance(2 * time.Second)
	if !timer.Reset(3 * time.Second) {
		t.Error("Reset on a pending timer should return true")
	}
	if clock.Pending() != 1 {
		t.Fatalf("Pending() = %d after Reset, want 1", clock.Pending())
	}

	clock.Advance(2 * time.Second)
	if fireCount != 0 {
		t.Fatal("timer fired at its original deadline after Reset")
	}
	clock.Advance(time.Second)
	if fireCount != 1 {
		t.Fatalf("fireCount = %d, want 1", fireCount)
	}

	// Reset after firing reschedules it.
	if timer.Reset(time.Second) {
		t.Error("Reset on a fired timer should return false")
	}
	clock.Advance(time.Second)
	if fireCount != 2 {
		t.Fatalf("fireCount = %d after re-arm, want 2", fireCount)
	}
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-clock.After(time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	clock.Advance(time.Second)
	<-done
}
