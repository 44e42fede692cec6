package replication

import (
	"context"
	"errors"
	"testing"
)

func TestNoop_BroadcastSucceeds(t *testing.T) {
	failed, err := (Noop{}).Broadcast(context.Background(), Mutation{Op: "set", Key: "k", Value: "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed != nil {
		t.Fatalf("expected no failed peers, got %v", failed)
	}
}

func TestNoop_TransactionalRunsFn(t *testing.T) {
	var ran bool
	err := (Noop{}).Transactional(context.Background(), []any{"k"}, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("Transactional did not invoke fn")
	}
}

func TestNoop_TransactionalPropagatesFnError(t *testing.T) {
	want := errors.New("boom")
	err := (Noop{}).Transactional(context.Background(), nil, func() error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
}

// fakeReplicaServer exists only to prove ReplicaServer can be implemented
// from outside this package, which requires SyncMessage/SyncAck/LockRequest/
// LockAck to be exported.
type fakeReplicaServer struct {
	applied []*SyncMessage
}

func (f *fakeReplicaServer) Apply(_ context.Context, m *SyncMessage) (*SyncAck, error) {
	f.applied = append(f.applied, m)
	return &SyncAck{OK: true}, nil
}

func (f *fakeReplicaServer) Lock(_ context.Context, r *LockRequest) (*LockAck, error) {
	return &LockAck{OK: true}, nil
}

func (f *fakeReplicaServer) Unlock(_ context.Context, r *LockRequest) (*LockAck, error) {
	return &LockAck{OK: true}, nil
}

func TestReplicaServer_ImplementableOutsidePackage(t *testing.T) {
	var _ ReplicaServer = (*fakeReplicaServer)(nil)

	f := &fakeReplicaServer{}
	ack, err := f.Apply(context.Background(), &SyncMessage{Op: "set", Key: "k", Value: "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ack.OK {
		t.Fatal("expected ack.OK true")
	}
	if len(f.applied) != 1 {
		t.Fatalf("expected 1 applied mutation, got %d", len(f.applied))
	}
}
