package numbers

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const TokenDecimals = 18

// Wad is the 18-decimal scaling factor used for both points and token amounts.
var Wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// MulDiv returns floor(a * b / denominator). The remainder is discarded;
// reward arithmetic rounds down everywhere.
func MulDiv(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, denominator), nil
}

// SplitBps returns floor(amount * bps / 10000), the basis-point cut of amount.
func SplitBps(amount *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, big.NewInt(10000))
}

// FromWholeTokens scales a whole-token count to its 18-decimal representation.
func FromWholeTokens(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), Wad)
}

// FormatWad renders an 18-decimal amount as a decimal string for logs and
// read-only views, e.g. "890.5".
func FormatWad(amount *big.Int) string {
	return decimal.NewFromBigInt(amount, -TokenDecimals).String()
}

// ParseWad parses a decimal token string into its 18-decimal representation,
// truncating anything below 10^-18.
func ParseWad(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return d.Shift(TokenDecimals).BigInt(), nil
}
