package evm

import "math/big"

// CVX minting schedule. CVX is minted on every CRV claim at a rate that falls
// by one step per cliff of supply until the cap is reached.
var (
	cvxCliffSize   = new(big.Int).Exp(big.NewInt(10), big.NewInt(23), nil) // 100k CVX
	cvxTotalCliffs = big.NewInt(1000)
	cvxMaxSupply   = new(big.Int).Exp(big.NewInt(10), big.NewInt(26), nil) // 100M CVX
)

// cvxMinted returns the CVX minted for claiming crvEarned at the given CVX supply.
func cvxMinted(crvEarned, supply *big.Int) *big.Int {
	if crvEarned.Sign() <= 0 {
		return new(big.Int)
	}
	cliff := new(big.Int).Quo(supply, cvxCliffSize)
	if cliff.Cmp(cvxTotalCliffs) >= 0 {
		return new(big.Int)
	}
	reduction := new(big.Int).Sub(cvxTotalCliffs, cliff)
	amount := new(big.Int).Mul(crvEarned, reduction)
	amount.Quo(amount, cvxTotalCliffs)

	remaining := new(big.Int).Sub(cvxMaxSupply, supply)
	if amount.Cmp(remaining) > 0 {
		amount.Set(remaining)
	}
	return amount
}
