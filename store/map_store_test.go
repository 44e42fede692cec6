package store

import "testing"

func TestMapStore_GetPutRemove(t *testing.T) {
	s := NewMapStore[string, string]()

	if _, ok := s.Get("k1"); ok {
		t.Fatal("expected miss on empty store")
	}

	s.Put("k1", Record[string]{Touched: 100, Value: "v1"})

	r, ok := s.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if r.Value != "v1" {
		t.Fatalf("got %q, want %q", r.Value, "v1")
	}

	if !s.Remove("k1") {
		t.Fatal("expected Remove to report the key was present")
	}
	if s.Remove("k1") {
		t.Fatal("expected second Remove to report absence")
	}
}

func TestMapStore_Update_AtomicReadModifyWrite(t *testing.T) {
	s := NewMapStore[string, int]()

	r, _ := s.Update("n", func(cur Record[int], ok bool) Record[int] {
		if ok {
			t.Fatal("expected no prior record")
		}
		return Record[int]{Touched: 1, Value: 10}
	})
	if r.Value != 10 {
		t.Fatalf("got %d, want 10", r.Value)
	}

	r, _ = s.Update("n", func(cur Record[int], ok bool) Record[int] {
		if !ok || cur.Value != 10 {
			t.Fatalf("expected prior value 10, got ok=%v value=%v", ok, cur.Value)
		}
		cur.Value = cur.Value + 1
		return cur
	})
	if r.Value != 11 {
		t.Fatalf("got %d, want 11", r.Value)
	}
}

func TestMapStore_Scan_WeaklyConsistentSnapshot(t *testing.T) {
	s := NewMapStore[string, int]()
	s.Put("a", Record[int]{Value: 1})
	s.Put("b", Record[int]{Value: 2})

	seen := map[string]int{}
	s.Scan(func(k string, r Record[int]) bool {
		seen[k] = r.Value
		return true
	})

	if len(seen) != 2 || seen["a"] != 1 || seen["b"] != 2 {
		t.Fatalf("unexpected scan result: %v", seen)
	}
}

func TestMapStore_Clear(t *testing.T) {
	s := NewMapStore[string, int]()
	s.Put("a", Record[int]{Value: 1})
	s.Put("b", Record[int]{Value: 2})

	if n := s.Clear(); n != 2 {
		t.Fatalf("got %d, want 2", n)
	}
	if s.Len() != 0 {
		t.Fatal("expected empty store after Clear")
	}
}

func TestRecord_ExpiredAt(t *testing.T) {
	noTTL := Record[string]{Touched: 0, Value: "v"}
	if noTTL.ExpiredAt(1_000_000) {
		t.Fatal("a record with nil TTL never expires")
	}

	withTTL := Record[string]{Touched: 1000, TTL: TTLPtr(50), Value: "v"}
	if withTTL.ExpiredAt(1049) {
		t.Fatal("not yet expired at touched+ttl-1")
	}
	if !withTTL.ExpiredAt(1050) {
		t.Fatal("expired exactly at touched+ttl")
	}
}
