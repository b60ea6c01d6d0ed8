package maintenance

import (
	"math/big"
	"sort"
	"time"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/tipstypes"
)

// rawTxHorizon is the default inclusion window for a bundle admitted
// without an explicit blockNumber or timestamp window (spec §3's "0 =
// any within a 24h horizon").
const rawTxHorizon = 24 * time.Hour

// isTimedOut reports whether b has left its inclusion window. TIPS has
// no block-height oracle wired into Maintenance, so a nonzero
// blockNumber target is not evaluated here; only the wall-clock rules
// spec §4.6 lists are enforced: an explicit maxTimestamp, or the
// default 24h horizon when the bundle carries none.
func isTimedOut(b bundle.Bundle, now time.Time, timeout time.Duration) bool {
	if b.MaxTimestamp != 0 {
		return now.After(time.Unix(int64(b.MaxTimestamp), 0))
	}
	if b.BlockNumber != 0 {
		return false
	}
	horizon := rawTxHorizon
	if timeout > 0 {
		horizon = timeout
	}
	return now.After(time.UnixMilli(b.CreatedAt).Add(horizon))
}

// groupBySender buckets single-tx raw bundles by sender; multi-tx
// bundles have no single attributable account and sit outside the
// per-account cap.
func groupBySender(bundles []bundle.Bundle) map[tipstypes.Address][]bundle.Bundle {
	byAccount := make(map[tipstypes.Address][]bundle.Bundle)
	for _, b := range bundles {
		if !b.IsSingleTxRawBundle() {
			continue
		}
		sender := b.Txs[0].Sender
		byAccount[sender] = append(byAccount[sender], b)
	}
	return byAccount
}

// sortByNonceDescending orders entries highest-nonce-first so the
// caller can drop the leading slice once over cap, keeping the
// lowest-nonce (soonest eligible) transactions.
func sortByNonceDescending(entries []bundle.Bundle) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Txs[0].Nonce > entries[j].Txs[0].Nonce
	})
}

// sortByDropPriorityDescending orders bundles highest-drop-priority
// first: older and cheaper bundles sort to the front so the caller can
// drop the leading slice once over the global cap.
func sortByDropPriorityDescending(bundles []bundle.Bundle) {
	now := time.Now()
	sort.Slice(bundles, func(i, j int) bool {
		return dropPriority(bundles[i], now) > dropPriority(bundles[j], now)
	})
}

// dropPriority composes bundle age with the inverse of its effective
// fee: older, cheaper bundles score highest and are dropped first when
// the global cap is exceeded.
func dropPriority(b bundle.Bundle, now time.Time) float64 {
	age := now.Sub(time.UnixMilli(b.CreatedAt)).Seconds()
	if age < 0 {
		age = 0
	}
	fee := effectiveFee(b)
	feeFloat, _ := new(big.Float).SetInt(fee).Float64()
	if feeFloat <= 0 {
		feeFloat = 1
	}
	return age / feeFloat
}

// effectiveFee is the minimum gas fee cap across a bundle's
// transactions, the bundle's weakest link for fee-based prioritization.
func effectiveFee(b bundle.Bundle) *big.Int {
	min := new(big.Int)
	for i, tx := range b.Txs {
		feeCap := tx.Raw.GasFeeCap()
		if i == 0 || feeCap.Cmp(min) < 0 {
			min = feeCap
		}
	}
	return min
}
