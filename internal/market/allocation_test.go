package market

import "testing"

func tradersOf(ids []int, profile RiskProfile) []TraderRef {
	out := make([]TraderRef, len(ids))
	for i, id := range ids {
		out[i] = TraderRef{Id: id, RiskProfile: profile}
	}
	return out
}

func sumQty(m map[int]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func TestEqualDistributionSumsToTotal(t *testing.T) {
	stock := StockRef{Symbol: "AAA", TotalShares: 100}
	traders := tradersOf([]int{1, 2, 3}, RiskModerate)
	out := Allocate(AllocationEqual, stock, traders, NewRNG(1))
	if sumQty(out) != 100 {
		t.Fatalf("sum = %d, want 100", sumQty(out))
	}
}

func TestEqualDistributionRemainderGoesToLowestIds(t *testing.T) {
	stock := StockRef{Symbol: "AAA", TotalShares: 10}
	traders := tradersOf([]int{3, 1, 2}, RiskModerate)
	out := allocateEqual(stock, traders)
	// 10 / 3 = 3 remainder 1, so trader 1 (lowest id) gets the extra share
	if out[1] != 4 {
		t.Fatalf("trader 1 qty = %d, want 4", out[1])
	}
	if out[2] != 3 || out[3] != 3 {
		t.Fatalf("traders 2,3 qty = %d,%d want 3,3", out[2], out[3])
	}
}

func TestWeightedRandomSumsToTotal(t *testing.T) {
	stock := StockRef{Symbol: "AAA", TotalShares: 1000}
	traders := []TraderRef{
		{Id: 1, RiskProfile: RiskConservative},
		{Id: 2, RiskProfile: RiskModerate},
		{Id: 3, RiskProfile: RiskAggressive},
	}
	out := Allocate(AllocationWeightedRandom, stock, traders, NewRNG(5))
	if sumQty(out) != 1000 {
		t.Fatalf("sum = %d, want 1000", sumQty(out))
	}
}

func TestRiskBasedSumsToTotalAndFavorsAggressiveOnVolatileStock(t *testing.T) {
	stock := StockRef{Symbol: "HOT", TotalShares: 1000, Volatility: 5.0}
	traders := []TraderRef{
		{Id: 1, RiskProfile: RiskConservative},
		{Id: 2, RiskProfile: RiskAggressive},
	}
	out := allocateRiskBased(stock, traders)
	if sumQty(out) != 1000 {
		t.Fatalf("sum = %d, want 1000", sumQty(out))
	}
	if out[2] <= out[1] {
		t.Fatalf("aggressive trader got %d, conservative got %d; want aggressive > conservative on a volatile stock", out[2], out[1])
	}
}

func TestAllocateEmptyTradersReturnsEmpty(t *testing.T) {
	stock := StockRef{Symbol: "AAA", TotalShares: 100}
	out := Allocate(AllocationEqual, stock, nil, NewRNG(1))
	if len(out) != 0 {
		t.Fatalf("expected empty allocation for no traders, got %v", out)
	}
}
