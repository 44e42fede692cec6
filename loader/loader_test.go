package loader

import (
	"context"
	"errors"
	"testing"
)

func TestInvoke_Success(t *testing.T) {
	fn := Func[string, string](func(_ context.Context, key string, args ...any) (string, error) {
		return key + "-loaded", nil
	})

	v, err := Invoke(context.Background(), fn, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "k-loaded" {
		t.Fatalf("got %q, want %q", v, "k-loaded")
	}
}

func TestInvoke_WrapsReturnedError(t *testing.T) {
	boom := errors.New("boom")
	fn := Func[string, string](func(_ context.Context, key string, args ...any) (string, error) {
		return "", boom
	})

	_, err := Invoke(context.Background(), fn, "k")
	var fe *ErrFallback
	if !errors.As(err, &fe) {
		t.Fatalf("expected *ErrFallback, got %T: %v", err, err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("expected Unwrap to reach the original error")
	}
}

func TestInvoke_RecoversPanic(t *testing.T) {
	fn := Func[string, string](func(_ context.Context, key string, args ...any) (string, error) {
		panic("loader exploded")
	})

	_, err := Invoke(context.Background(), fn, "k")
	var fe *ErrFallback
	if !errors.As(err, &fe) {
		t.Fatalf("expected *ErrFallback from recovered panic, got %T: %v", err, err)
	}
}

func TestInvoke_PassesFallbackArgs(t *testing.T) {
	var seen []any
	fn := Func[string, string](func(_ context.Context, key string, args ...any) (string, error) {
		seen = args
		return "v", nil
	})

	_, _ = Invoke(context.Background(), fn, "k", "extra1", 2)
	if len(seen) != 2 || seen[0] != "extra1" || seen[1] != 2 {
		t.Fatalf("unexpected args forwarded: %v", seen)
	}
}
