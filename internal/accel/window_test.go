package accel

import "testing"

func TestWindow_PushEvictsOldest(t *testing.T) {
	w := newWindow[int](3)

	for i := 1; i <= 3; i++ {
		if _, evicted := w.Push(i); evicted {
			t.Fatalf("Push %d: unexpected eviction while filling", i)
		}
	}
	if !w.Full() {
		t.Fatal("Window should be full")
	}

	old, evicted := w.Push(4)
	if !evicted || old != 1 {
		t.Errorf("Expected eviction of 1, got %d (evicted=%v)", old, evicted)
	}

	want := []int{2, 3, 4}
	for i, v := range want {
		if got := w.At(i); got != v {
			t.Errorf("At(%d): expected %d, got %d", i, v, got)
		}
	}
}

func TestWindow_Clear(t *testing.T) {
	w := newWindow[float64](2)
	w.Push(1)
	w.Push(2)
	w.Push(3)
	w.Clear()

	if w.Len() != 0 {
		t.Errorf("Expected empty window, got length %d", w.Len())
	}

	w.Push(7)
	if w.Len() != 1 || w.At(0) != 7 {
		t.Errorf("Expected [7] after clear, got length %d", w.Len())
	}
}

func TestWindow_AtOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for out-of-range index")
		}
	}()
	w := newWindow[int](2)
	w.Push(1)
	w.At(1)
}
