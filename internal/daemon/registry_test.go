package daemon

import (
	"testing"
	"time"

	"relay/internal/types"
)

func TestRegistryRemoveWinsOnce(t *testing.T) {
	reg := newActiveRegistry()
	reg.Add("r1", types.RunModeFresh, "", time.Now(), func() {})

	if _, ok := reg.Get("r1"); !ok {
		t.Fatalf("expected entry")
	}
	if _, removed := reg.Remove("r1"); !removed {
		t.Fatalf("first remove should win")
	}
	if _, removed := reg.Remove("r1"); removed {
		t.Fatalf("second remove must lose")
	}
}

func TestRegistryTakeForCancel(t *testing.T) {
	reg := newActiveRegistry()
	cancelled := false
	reg.Add("r1", types.RunModeFresh, "", time.Now(), func() { cancelled = true })

	cancel, info, ok := reg.TakeForCancel("r1")
	if !ok {
		t.Fatalf("expected take to succeed")
	}
	if info.Status != types.RunStatusCancelled {
		t.Fatalf("expected cancelled status in taken info, got %s", info.Status)
	}
	cancel()
	if !cancelled {
		t.Fatalf("cancel handle not wired")
	}

	// Take removes the entry, so the finishing run loses the race.
	if _, _, ok := reg.TakeForCancel("r1"); ok {
		t.Fatalf("second take must fail")
	}
	if _, removed := reg.Remove("r1"); removed {
		t.Fatalf("remove after take must fail")
	}
}

func TestRegistrySessionIDSetOnce(t *testing.T) {
	reg := newActiveRegistry()
	reg.Add("r1", types.RunModeFresh, "", time.Now(), func() {})

	reg.SetSessionID("r1", "s1")
	reg.SetSessionID("r1", "s2")

	info, ok := reg.Get("r1")
	if !ok || info.SessionID != "s1" {
		t.Fatalf("expected first session id to stick, got %+v", info)
	}
}

func TestRegistryListSortedByStart(t *testing.T) {
	reg := newActiveRegistry()
	base := time.Now()
	reg.Add("r2", types.RunModeFresh, "", base.Add(time.Second), func() {})
	reg.Add("r1", types.RunModeResume, "", base, func() {})

	list := reg.List()
	if len(list) != 2 || list[0].RunID != "r1" || list[1].RunID != "r2" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected len 2, got %d", reg.Len())
	}
}
