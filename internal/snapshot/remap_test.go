package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIDMapResolve(t *testing.T) {
	m := IDMap{}
	m.Set(1, 100)

	if got := m.Resolve(int64Ptr(1)); got == nil || *got != 100 {
		t.Errorf("Resolve(1) = %v, want 100", got)
	}
	if got := m.Resolve(int64Ptr(2)); got != nil {
		t.Errorf("Resolve(2) = %v, want nil", *got)
	}
	if got := m.Resolve(nil); got != nil {
		t.Error("Resolve(nil) should be nil")
	}
	if _, ok := m.Lookup(2); ok {
		t.Error("Lookup(2) found a mapping")
	}
}

func TestRemap(t *testing.T) {
	errBad := errors.New("bad row")
	upsert := func(n int) (int64, bool, error) {
		switch {
		case n < 0:
			return 0, false, errBad
		case n%2 == 0:
			return int64(n * 10), false, nil
		default:
			return int64(n * 10), true, nil
		}
	}
	id := func(n int) int64 { return int64(n) }

	ids, tally, err := remap([]int{1, 2, 3}, id, upsert, nil)
	if err != nil {
		t.Fatalf("remap: %v", err)
	}
	if tally != (Tally{Created: 2, Updated: 1}) {
		t.Errorf("tally = %+v", tally)
	}
	if got, _ := ids.Lookup(3); got != 30 {
		t.Errorf("ids[3] = %d, want 30", got)
	}

	if _, _, err := remap([]int{1, -1}, id, upsert, nil); !errors.Is(err, errBad) {
		t.Errorf("remap without onError = %v, want errBad", err)
	}

	var skipped []int
	ids, tally, err = remap([]int{1, -1, 2}, id, upsert, func(n int, err error) error {
		skipped = append(skipped, n)
		return nil
	})
	if err != nil {
		t.Fatalf("remap with onError: %v", err)
	}
	if tally != (Tally{Created: 1, Updated: 1, Skipped: 1}) || len(skipped) != 1 {
		t.Errorf("tally = %+v, skipped = %v", tally, skipped)
	}
	if _, ok := ids.Lookup(-1); ok {
		t.Error("failed row was mapped")
	}

	_, _, err = remap([]int{-1}, id, upsert, func(int, error) error { return fmt.Errorf("fatal") })
	if err == nil {
		t.Error("onError returning an error should abort")
	}
}

func TestPrepareCredentials(t *testing.T) {
	identities := []IdentityRecord{{Handle: "A@x"}, {Handle: "b@x "}, {Handle: "c@x"}}
	creds, err := prepareCredentials(context.Background(), fakeHasher{}, identities)
	if err != nil {
		t.Fatalf("prepareCredentials: %v", err)
	}
	if len(creds) != 3 {
		t.Fatalf("len = %d, want 3", len(creds))
	}
	seen := map[string]bool{}
	for _, key := range []string{"a@x", "b@x", "c@x"} {
		c, ok := creds[key]
		if !ok {
			t.Fatalf("no credential for %s", key)
		}
		if len(c.plain) != tempSecretBytes*2 || c.hash != "hashed:"+c.plain {
			t.Errorf("credential for %s = %+v", key, c)
		}
		if seen[c.plain] {
			t.Error("temp secrets repeat")
		}
		seen[c.plain] = true
	}

	_, err = prepareCredentials(context.Background(), fakeHasher{err: errors.New("boom")}, identities)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want hasher failure", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := prepareCredentials(ctx, fakeHasher{}, identities); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled err = %v", err)
	}
}

func TestBcryptHasher(t *testing.T) {
	hash, err := BcryptHasher{Cost: 4}.Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash = %q, want bcrypt", hash)
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindConflict, "busy", nil))
	if !errors.Is(err, ErrConflict) {
		t.Error("errors.Is(err, ErrConflict) = false")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = true")
	}
	if KindOf(err) != KindConflict {
		t.Errorf("KindOf = %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("foreign errors should be internal")
	}

	cause := errors.New("disk full")
	e := newError(KindInternal, "persist snapshot", cause)
	if !errors.Is(e, cause) || e.Error() != "persist snapshot: disk full" {
		t.Errorf("error = %q", e.Error())
	}
	if KindUnsupportedVersion.String() != "unsupported_version" {
		t.Errorf("String = %s", KindUnsupportedVersion)
	}
}
