package collateral

import "math/big"

var (
	// precision is the single fixed-point scale used for USD values and
	// health factors throughout the module.
	precision = mustBigInt("1000000000000000000") // 1e18

	// maxBalance caps ledger entries at the EVM word width so overflow is a
	// detectable failure rather than silent unbounded growth.
	maxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes a*b/den with flooring division. Division results derived for
// users always round down so any truncation favours the protocol.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
