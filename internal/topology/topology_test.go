package topology

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestLocatorAppliesOnlyNewerMaps(t *testing.T) {
	l := NewLocator()
	m1 := &PartitionMap{ID: MapID{Epoch: 1, Revision: 0}, Partitions: []PartitionEntry{{ActiveNodeIndex: 0}}}
	m2 := &PartitionMap{ID: MapID{Epoch: 1, Revision: 1}, Partitions: []PartitionEntry{{ActiveNodeIndex: 1}}}
	stale := &PartitionMap{ID: MapID{Epoch: 1, Revision: 0}, Partitions: []PartitionEntry{{ActiveNodeIndex: 2}}}

	if !l.Apply(m1) {
		t.Fatal("first apply should be accepted")
	}
	if !l.Apply(m2) {
		t.Fatal("strictly newer revision should be accepted")
	}
	if l.Apply(stale) {
		t.Fatal("stale map must be rejected")
	}
	if l.Current().ID != m2.ID {
		t.Fatalf("current = %+v, want %+v", l.Current().ID, m2.ID)
	}
}

func TestLocateRoutesDeterministically(t *testing.T) {
	l := NewLocator()
	l.Apply(&PartitionMap{
		ID: MapID{Epoch: 1},
		Partitions: []PartitionEntry{
			{ActiveNodeIndex: 0}, {ActiveNodeIndex: 1}, {ActiveNodeIndex: 2}, {ActiveNodeIndex: 3},
		},
	})

	loc1, err := l.Locate([]byte("user::1234"))
	if err != nil {
		t.Fatal(err)
	}
	loc2, err := l.Locate([]byte("user::1234"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loc1, loc2) {
		t.Errorf("Locate is not deterministic: %+v != %+v", loc1, loc2)
	}
}

func TestLocateNoActiveNode(t *testing.T) {
	l := NewLocator()
	l.Apply(&PartitionMap{
		ID:         MapID{Epoch: 1},
		Partitions: []PartitionEntry{{ActiveNodeIndex: NoActiveNode}},
	})
	_, err := l.Locate([]byte("k"))
	if err == nil {
		t.Fatal("expected ErrNoActivePartition")
	}
}

type fakeFetcher struct {
	maps chan *ClusterMap
}

func (f *fakeFetcher) FetchClusterMap(ctx context.Context, bucket string) (*ClusterMap, error) {
	select {
	case m := <-f.maps:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestManagerBootstrapAndTrigger(t *testing.T) {
	f := &fakeFetcher{maps: make(chan *ClusterMap, 2)}
	f.maps <- &ClusterMap{
		Bucket: "default",
		Map:    &PartitionMap{ID: MapID{Epoch: 1}, Partitions: []PartitionEntry{{ActiveNodeIndex: 0}}},
	}

	mgr := NewManager(f, "default", time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := mgr.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if mgr.Locator().Current().ID.Epoch != 1 {
		t.Fatal("bootstrap did not apply the fetched map")
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	go mgr.Run(runCtx)
	defer runCancel()

	f.maps <- &ClusterMap{
		Bucket: "default",
		Map:    &PartitionMap{ID: MapID{Epoch: 2}, Partitions: []PartitionEntry{{ActiveNodeIndex: 1}}},
	}
	mgr.Trigger()

	deadline := time.After(time.Second)
	for mgr.Locator().Current().ID.Epoch != 2 {
		select {
		case <-deadline:
			t.Fatal("trigger did not cause a refetch in time")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestManifestTrackerAwaitAtLeast(t *testing.T) {
	tr := NewManifestTracker()
	ctx := context.Background()

	go func() {
		time.Sleep(5 * time.Millisecond)
		tr.Observe(3)
	}()

	if err := tr.AwaitAtLeast(ctx, 3, time.Second); err != nil {
		t.Fatalf("AwaitAtLeast: %v", err)
	}
	if tr.Current() != 3 {
		t.Fatalf("Current() = %d, want 3", tr.Current())
	}
}

func TestManifestTrackerTimesOut(t *testing.T) {
	tr := NewManifestTracker()
	err := tr.AwaitAtLeast(context.Background(), 1, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestManifestTrackerIgnoresStaleObservation(t *testing.T) {
	tr := NewManifestTracker()
	tr.Observe(5)
	tr.Observe(2)
	if tr.Current() != 5 {
		t.Fatalf("Current() = %d, want 5 (monotone)", tr.Current())
	}
}
