package extract

import (
	"github.com/shopspring/decimal"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/solana"
)

// ResolveDirection zips pre and post balances by position and lets the
// first pair that is the same token account of owner on both sides decide:
// more tokens after is a buy, fewer is a sell. No matching pair, or equal
// amounts, is unknown. A pair whose sides disagree on owner, mint or
// account index is skipped; that happens when an account exists only after
// the transaction and shifts the positions.
func ResolveDirection(pre, post []solana.TokenBalance, owner string) domain.Direction {
	n := len(pre)
	if len(post) < n {
		n = len(post)
	}

	for i := 0; i < n; i++ {
		if !sameAccount(pre[i], post[i], owner) {
			continue
		}

		before := uiAmount(pre[i].UITokenAmount)
		after := uiAmount(post[i].UITokenAmount)

		switch after.Cmp(before) {
		case 1:
			return domain.DirectionBuy
		case -1:
			return domain.DirectionSell
		default:
			return domain.DirectionUnknown
		}
	}

	return domain.DirectionUnknown
}

func sameAccount(pre, post solana.TokenBalance, owner string) bool {
	return pre.Owner == owner &&
		post.Owner == owner &&
		pre.Mint == post.Mint &&
		pre.AccountIndex == post.AccountIndex
}

// uiAmount prefers the exact string form and falls back to the float.
func uiAmount(a solana.UITokenAmount) decimal.Decimal {
	if a.UIAmountString != "" {
		if d, err := decimal.NewFromString(a.UIAmountString); err == nil {
			return d
		}
	}
	if a.UIAmount != nil {
		return decimal.NewFromFloat(*a.UIAmount)
	}
	return decimal.Zero
}
