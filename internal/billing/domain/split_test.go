package billing

import "testing"

func TestComputeSplit_BelowGuarantee(t *testing.T) {
	// 10% measured against a 15% guarantee: no charge, reason recorded.
	split := ComputeSplit(120_000, 10, 15, 2500)
	if split.GuaranteeMet {
		t.Fatal("guarantee must not be met")
	}
	if split.VibeluxShareCents != 0 {
		t.Fatalf("below guarantee share must be zero, got %d", split.VibeluxShareCents)
	}
	if split.CustomerSavingsCents != 120_000 {
		t.Fatalf("customer keeps all savings, got %d", split.CustomerSavingsCents)
	}
	if split.Reason != BelowGuaranteeReason {
		t.Fatalf("reason = %q", split.Reason)
	}
}

func TestComputeSplit_AtGuarantee(t *testing.T) {
	// Exactly at the guarantee the gate opens.
	split := ComputeSplit(100_000, 15, 15, 2500)
	if !split.GuaranteeMet {
		t.Fatal("guarantee met at the threshold")
	}
	if split.VibeluxShareCents != 25_000 {
		t.Fatalf("share = %d, want 25000", split.VibeluxShareCents)
	}
}

func TestComputeSplit_RevenueShare(t *testing.T) {
	// $2,200.00 savings at 25% share: $550.00 / $1,650.00.
	split := ComputeSplit(220_000, 22, 15, 2500)
	if !split.GuaranteeMet {
		t.Fatal("guarantee must be met")
	}
	if split.VibeluxShareCents != 55_000 {
		t.Fatalf("share = %d, want 55000", split.VibeluxShareCents)
	}
	if split.CustomerSavingsCents != 165_000 {
		t.Fatalf("customer = %d, want 165000", split.CustomerSavingsCents)
	}
	if split.VibeluxShareCents+split.CustomerSavingsCents != 220_000 {
		t.Fatal("split must conserve the total")
	}
}

func TestComputeSplit_HalfUpRounding(t *testing.T) {
	// 101 cents at 25% is 25.25 -> 25; 102 cents is 25.5 -> 26.
	if got := ComputeSplit(101, 20, 0, 2500).VibeluxShareCents; got != 25 {
		t.Fatalf("round down: got %d, want 25", got)
	}
	if got := ComputeSplit(102, 20, 0, 2500).VibeluxShareCents; got != 26 {
		t.Fatalf("round half up: got %d, want 26", got)
	}
}

func TestComputeSplit_NegativeSavings(t *testing.T) {
	// Overuse above the guarantee: nothing billable, customer carries the
	// negative amount.
	split := ComputeSplit(-50_000, 20, 15, 2500)
	if split.VibeluxShareCents != 0 {
		t.Fatalf("no share on negative savings, got %d", split.VibeluxShareCents)
	}
	if split.CustomerSavingsCents != -50_000 {
		t.Fatalf("customer savings = %d", split.CustomerSavingsCents)
	}
}
