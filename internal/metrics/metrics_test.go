package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.TierQueueDepth.WithLabelValues("0").Set(3)
	m.LaggingBootstrap.Set(2)
	m.EnvelopesChosen.WithLabelValues("kafka", "orders", "0").Inc()
	m.ChooseEmpty.Inc()
	m.ProtocolDrops.WithLabelValues("kafka", "orders").Inc()

	if got := testutil.ToFloat64(m.TierQueueDepth.WithLabelValues("0")); got != 3 {
		t.Fatalf("TierQueueDepth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.LaggingBootstrap); got != 2 {
		t.Fatalf("LaggingBootstrap = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EnvelopesChosen.WithLabelValues("kafka", "orders", "0")); got != 1 {
		t.Fatalf("EnvelopesChosen = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ChooseEmpty); got != 1 {
		t.Fatalf("ChooseEmpty = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProtocolDrops.WithLabelValues("kafka", "orders")); got != 1 {
		t.Fatalf("ProtocolDrops = %v, want 1", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("got %d registered metric families, want 5", len(families))
	}
}

func TestNew_IsolatedPerRegistry(t *testing.T) {
	regA := prometheus.NewRegistry()
	regB := prometheus.NewRegistry()

	mA := New(regA)
	mB := New(regB)

	mA.ChooseEmpty.Inc()

	if got := testutil.ToFloat64(mA.ChooseEmpty); got != 1 {
		t.Fatalf("mA.ChooseEmpty = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mB.ChooseEmpty); got != 0 {
		t.Fatalf("mB.ChooseEmpty = %v, want 0 (registries must not share state)", got)
	}
}
