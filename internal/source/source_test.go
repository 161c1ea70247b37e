package source

import (
	"testing"
	"time"
)

func TestDefaultsAndParse(t *testing.T) {
	cfg, err := Defaults(SearchConsole)
	if err != nil {
		t.Fatalf("Defaults(search_console) err=%v", err)
	}
	if cfg.Mode != ModeWindowed || cfg.MaxWindowDays != 14 || cfg.FetchLagDays != 3 {
		t.Fatalf("search_console defaults=%+v", cfg)
	}
	if cfg.Pacing != 2*time.Second {
		t.Fatalf("search_console pacing=%s", cfg.Pacing)
	}

	mc, err := Defaults(MerchantCenter)
	if err != nil {
		t.Fatalf("Defaults(merchant_center) err=%v", err)
	}
	if mc.Mode != ModeSnapshot || mc.MaxHistoryDays != 0 {
		t.Fatalf("merchant_center defaults=%+v, want snapshot with no history", mc)
	}

	if _, err := Defaults(Source("fax_machine")); err == nil {
		t.Fatalf("Defaults(unknown) err=nil")
	}

	s, err := Parse("google_ads")
	if err != nil || s != GoogleAds {
		t.Fatalf("Parse(google_ads)=%v,%v", s, err)
	}
	if _, err := Parse("GoogleAds"); err == nil {
		t.Fatalf("Parse is expected to be exact-match")
	}
}

func TestAll_StableOrderAndComplete(t *testing.T) {
	all := All()
	if len(all) != 6 {
		t.Fatalf("All()=%d sources, want 6", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Fatalf("All() not sorted: %v", all)
		}
	}
	for _, s := range all {
		if _, err := Defaults(s); err != nil {
			t.Fatalf("Defaults(%s) err=%v", s, err)
		}
	}
}
