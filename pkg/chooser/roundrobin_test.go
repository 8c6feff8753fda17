package chooser

import "testing"

func env(system, stream string, partition int32, offset string) Envelope {
	return Envelope{
		SSP:    SSP{System: system, Stream: stream, Partition: partition},
		Offset: Offset(offset),
	}
}

func TestRoundRobin_FIFOOrder(t *testing.T) {
	rr := NewRoundRobin()
	rr.Start()

	a := env("sys", "A", 0, "1")
	b := env("sys", "B", 0, "1")
	c := env("sys", "A", 0, "2")

	rr.Update(a)
	rr.Update(b)
	rr.Update(c)

	for _, want := range []Envelope{a, b, c} {
		got, ok := rr.Choose()
		if !ok {
			t.Fatalf("expected an envelope, got none")
		}
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}

	if _, ok := rr.Choose(); ok {
		t.Fatalf("expected no envelope once queue is drained")
	}
}

func TestRoundRobin_ChooseOnEmptyReturnsFalse(t *testing.T) {
	rr := NewRoundRobin()
	if _, ok := rr.Choose(); ok {
		t.Fatalf("expected ok == false on an empty selector")
	}
}

func TestRoundRobin_StopDiscardsQueue(t *testing.T) {
	rr := NewRoundRobin()
	rr.Update(env("sys", "A", 0, "1"))
	rr.Stop()

	if _, ok := rr.Choose(); ok {
		t.Fatalf("expected no envelope after Stop")
	}
}

func TestRoundRobin_NonDuplication(t *testing.T) {
	rr := NewRoundRobin()
	want := 50
	for i := 0; i < want; i++ {
		rr.Update(env("sys", "A", int32(i), "1"))
	}

	seen := make(map[int32]bool)
	count := 0
	for {
		e, ok := rr.Choose()
		if !ok {
			break
		}
		if seen[e.SSP.Partition] {
			t.Fatalf("envelope for partition %d returned twice", e.SSP.Partition)
		}
		seen[e.SSP.Partition] = true
		count++
	}

	if count != want {
		t.Fatalf("expected %d envelopes returned, got %d", want, count)
	}
}
