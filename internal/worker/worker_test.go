package worker

import "testing"

func TestProgressPercent(t *testing.T) {
	p := Progress{FramesComplete: 30, FramesTotal: 120}
	if got := p.Percent(); got != 25 {
		t.Errorf("Percent = %v, want 25", got)
	}

	if got := (Progress{}).Percent(); got != 0 {
		t.Errorf("empty Percent = %v, want 0", got)
	}
}

func TestSemaphoreBounds(t *testing.T) {
	s := NewSemaphore(2)

	<-s.Chan()
	<-s.Chan()

	select {
	case <-s.Chan():
		t.Fatal("acquired a third permit from a 2-permit semaphore")
	default:
	}

	s.Release()
	select {
	case <-s.Chan():
	default:
		t.Fatal("released permit not acquirable")
	}
}

func TestSemaphoreMinimumOne(t *testing.T) {
	s := NewSemaphore(0)
	select {
	case <-s.Chan():
	default:
		t.Fatal("zero-count semaphore must still hold one permit")
	}
}
