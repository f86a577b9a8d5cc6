package observability

import "testing"

func TestStageWindowSnapshotStats(t *testing.T) {
	w := newTurnStageWindow(8)
	for _, ms := range []float64{100, 200, 300, 400} {
		w.Observe("complete", ms)
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	st := snap.Stages[0]
	if st.Stage != "complete" || st.Samples != 4 {
		t.Fatalf("unexpected stage stats: %+v", st)
	}
	if st.LastMS != 400 || st.AvgMS != 250 {
		t.Fatalf("last/avg = %v/%v, want 400/250", st.LastMS, st.AvgMS)
	}
	if st.P50MS < 200 || st.P50MS > 300 {
		t.Fatalf("p50 = %v, want within [200,300]", st.P50MS)
	}
	if st.TargetP95MS != 2500 {
		t.Fatalf("target p95 = %v", st.TargetP95MS)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newTurnStageWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe("transcribe", float64(i))
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 || snap.Stages[0].Samples != 4 {
		t.Fatalf("samples = %+v, want window of 4", snap.Stages)
	}
	if snap.Stages[0].LastMS != 9 {
		t.Fatalf("last = %v, want 9", snap.Stages[0].LastMS)
	}
}

func TestStageWindowIgnoresInvalidObservations(t *testing.T) {
	w := newTurnStageWindow(4)
	w.Observe("", 10)
	w.Observe("x", -1)
	if snap := w.Snapshot(); len(snap.Stages) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap.Stages)
	}
}
