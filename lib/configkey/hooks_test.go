package configkey

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dCfg/lib/quorum"
	"github.com/google/uuid"
)

var (
	deviceA = uuid.MustParse("6a2b1c4e-0000-4000-8000-00000000000a")
	deviceB = uuid.MustParse("6a2b1c4e-0000-4000-8000-00000000000b")
)

func TestKeyHelpers(t *testing.T) {
	if got := DmCryptKey(deviceA); got != "dm-crypt/6a2b1c4e-0000-4000-8000-00000000000a/luks" {
		t.Errorf("Unexpected dm-crypt key %s", got)
	}
	if got := DaemonPrivatePrefix(12); got != "daemon-private/12/" {
		t.Errorf("Unexpected daemon-private prefix %s", got)
	}
}

func TestValidateCreate(t *testing.T) {
	s, q := newTestStore(t)
	h := NewHooks(q, s)
	seed(t, s, map[string]string{DmCryptKey(deviceA): "secret"})

	testCases := []struct {
		name     string
		device   uuid.UUID
		secret   string
		expected Validation
		code     RetCode
	}{
		{"Unbound", deviceB, "secret", ValidationOK, RetCSuccess},
		{"SameSecret", deviceA, "secret", ValidationAlreadyBound, RetCExistsMatch},
		{"OtherSecret", deviceA, "different", ValidationConflict, RetCExists},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := h.ValidateCreate(tc.device, []byte(tc.secret))
			if err != nil {
				t.Fatalf("ValidateCreate failed: %v", err)
			}
			if v != tc.expected || v.Code() != tc.code {
				t.Errorf("Expected %s (%d), got %s (%d)", tc.expected, tc.code, v, v.Code())
			}
		})
	}

	if q.pendingCalls != 0 {
		t.Errorf("Validation must not stage anything")
	}
}

func TestApplyCreate(t *testing.T) {
	s, q := newTestStore(t)
	h := NewHooks(q, s)

	if err := h.ApplyCreate(deviceA, []byte("secret")); !errors.Is(err, quorum.ErrNotPlugged) {
		t.Fatalf("Expected ErrNotPlugged, got %v", err)
	}
	if q.proposes != 0 {
		t.Fatalf("Unplugged apply must not propose")
	}

	q.Plug()
	if err := h.ApplyCreate(deviceA, []byte("secret")); err != nil {
		t.Fatalf("ApplyCreate failed: %v", err)
	}
	if q.proposes != 1 || q.pending.Len() != 1 {
		t.Errorf("Expected one staged put and one proposal, got %d ops / %d proposals", q.pending.Len(), q.proposes)
	}
	if len(q.finishers) != 0 {
		t.Errorf("ApplyCreate must not queue a finisher")
	}
	if mustExist(t, s, DmCryptKey(deviceA)) {
		t.Errorf("Secret must not be visible before the commit")
	}

	q.commit(t)
	if v, _ := s.Get(DmCryptKey(deviceA)); string(v) != "secret" {
		t.Errorf("Expected secret after commit, got %q", v)
	}

	if v, _ := h.ValidateCreate(deviceA, []byte("secret")); v != ValidationAlreadyBound {
		t.Errorf("Re-validating the committed secret should report already bound, got %s", v)
	}
}

func TestValidateCreateClosedEngine(t *testing.T) {
	s, q := newTestStore(t)
	h := NewHooks(q, s)
	seed(t, s, map[string]string{DmCryptKey(deviceA): "secret"})
	_ = s.Engine().Close()

	for _, secret := range []string{"secret", "different"} {
		v, err := h.ValidateCreate(deviceA, []byte(secret))
		if CodeOf(err) != RetCIO {
			t.Errorf("ValidateCreate(%q) on a closed engine: expected RetCIO, got %s / %v", secret, v, err)
		}
	}
}

func TestValidateDestroy(t *testing.T) {
	s, q := newTestStore(t)
	h := NewHooks(q, s)
	seed(t, s, map[string]string{
		DmCryptKey(deviceA):          "secret",
		DaemonPrivatePrefix(7) + "x": "private",
	})

	testCases := []struct {
		name     string
		device   uuid.UUID
		id       int
		expected bool
	}{
		{"Both", deviceA, 7, true},
		{"DmCryptOnly", deviceA, 8, true},
		{"DaemonPrivateOnly", deviceB, 7, true},
		{"Nothing", deviceB, 70, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := h.ValidateDestroy(tc.device, tc.id); got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestApplyDestroy(t *testing.T) {
	s, q := newTestStore(t)
	h := NewHooks(q, s)
	seed(t, s, map[string]string{
		DmCryptKey(deviceA):                 "secret",
		DmCryptPrefix(deviceA) + "extra":    "more",
		DaemonPrivatePrefix(7) + "a":        "1",
		DaemonPrivatePrefix(7) + "nested/b": "2",
		DaemonPrivatePrefix(70) + "a":       "other daemon",
		DmCryptKey(deviceB):                 "other device",
		"unrelated":                         "keep",
	})

	if err := h.ApplyDestroy(deviceA, 7); !errors.Is(err, quorum.ErrNotPlugged) {
		t.Fatalf("Expected ErrNotPlugged, got %v", err)
	}
	if q.proposes != 0 || !q.pending.Empty() {
		t.Fatalf("Unplugged destroy must not stage or propose")
	}

	q.Plug()
	if err := h.ApplyDestroy(deviceA, 7); err != nil {
		t.Fatalf("ApplyDestroy failed: %v", err)
	}
	if q.proposes != 1 {
		t.Errorf("Expected a single proposal, got %d", q.proposes)
	}
	if q.pending.Len() != 4 {
		t.Errorf("Expected 4 staged erases in one transaction, got %d", q.pending.Len())
	}
	if !mustExist(t, s, DmCryptKey(deviceA)) {
		t.Errorf("Entries must stay until the commit")
	}

	q.commit(t)
	if h.ValidateDestroy(deviceA, 7) {
		t.Errorf("Nothing should be bound after destroy")
	}
	for _, k := range []string{DaemonPrivatePrefix(70) + "a", DmCryptKey(deviceB), "unrelated"} {
		if !mustExist(t, s, k) {
			t.Errorf("Key %s outside the destroyed prefixes was removed", k)
		}
	}
}

func TestApplyDestroyNothingBound(t *testing.T) {
	s, q := newTestStore(t)
	h := NewHooks(q, s)

	q.Plug()
	if err := h.ApplyDestroy(deviceA, 1); err != nil {
		t.Fatalf("ApplyDestroy failed: %v", err)
	}
	if !q.pending.Empty() {
		t.Errorf("Nothing should be staged")
	}
}
