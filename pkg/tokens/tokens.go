package tokens

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var ErrInsufficientBalance = errors.New("InsufficientBalance")

// Bank is an in-process reward-token ledger. It stands in for the external
// asset layer: funding transfers tokens in from the funder, claim settlement
// transfers them out to the claimant. Balances are keyed by (token, holder).
type Bank struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int
}

func NewBank() *Bank {
	return &Bank{
		balances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (b *Bank) balance(token, holder common.Address) *big.Int {
	holders, ok := b.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		b.balances[token] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = new(big.Int)
		holders[holder] = bal
	}
	return bal
}

// Mint credits newly issued tokens to a holder.
func (b *Bank) Mint(token, to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balance(token, to)
	bal.Add(bal, amount)
}

// Transfer moves amount of token from one holder to another. It fails before
// touching either balance when the sender is underfunded.
func (b *Bank) Transfer(token common.Address, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal := b.balance(token, from)
	if fromBal.Cmp(amount) < 0 {
		return errors.Wrapf(ErrInsufficientBalance, "holder %s has %s, needs %s",
			from.Hex(), fromBal.String(), amount.String())
	}

	fromBal.Sub(fromBal, amount)
	toBal := b.balance(token, to)
	toBal.Add(toBal, amount)
	return nil
}

// BalanceOf returns a holder's balance of token.
func (b *Bank) BalanceOf(token, holder common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if holders, ok := b.balances[token]; ok {
		if bal, ok := holders[holder]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return new(big.Int)
}
