package concurrency

import "testing"

func TestNewRejectsReserveAtOrAboveMax(t *testing.T) {
	if _, err := New(10, 10); err != ErrInvalidReserve {
		t.Fatalf("expected ErrInvalidReserve, got %v", err)
	}
}

func TestAdmitDeniesOverCapacity(t *testing.T) {
	p, err := New(10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Admit(10, Interactive) {
		t.Fatal("expected admission of exactly the full capacity")
	}
	if p.Admit(1, Interactive) {
		t.Fatal("expected denial once at capacity")
	}
}

func TestBackgroundReserveProtection(t *testing.T) {
	p, err := New(10, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Admit(7, Interactive) {
		t.Fatal("expected interactive admit to fill up to the reserve boundary")
	}
	if p.Admit(1, Background) {
		t.Fatal("expected background denial when available equals the reserve")
	}
	if !p.Admit(1, Interactive) {
		t.Fatal("expected interactive admission to be allowed to eat into the reserve")
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	p, _ := New(10, 0)
	p.Admit(3, Interactive)
	p.Release(10)
	if p.InFlightWeight() != 0 {
		t.Fatalf("expected in-flight weight clamped at 0, got %d", p.InFlightWeight())
	}
}

func TestSetEffectiveMaxClampsToBounds(t *testing.T) {
	p, _ := New(10, 0)
	p.SetEffectiveMax(100, 1)
	if p.EffectiveMax() != 10 {
		t.Fatalf("expected effective max clamped to max_weight=10, got %d", p.EffectiveMax())
	}
	p.SetEffectiveMax(0, 2)
	if p.EffectiveMax() != 2 {
		t.Fatalf("expected effective max clamped to min_concurrency=2, got %d", p.EffectiveMax())
	}
}

func TestPressureRetryAfterMsIsClamped(t *testing.T) {
	p, _ := New(4, 0)
	p.Admit(4, Interactive)
	hint := p.PressureRetryAfterMs()
	if hint < 25 || hint > 5000 {
		t.Fatalf("expected retry hint within [25, 5000], got %d", hint)
	}
}
