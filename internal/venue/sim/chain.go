/*

This file contains the in-memory ledger shared by the simulated venues: the custody account's
token balances, a controllable clock, and fault injection for exercising failure paths.

*/

package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/types"
)

// Clock is a manually advanced time source. Reward accrual only moves when it does.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fault struct {
	err   error
	delay time.Duration
}

// Chain holds the custody account's balances. Every venue operation runs under
// its lock, so each one is atomic.
type Chain struct {
	mu       sync.Mutex
	clock    *Clock
	balances map[types.AssetID]sdkmath.Int
	faults   map[string]fault
	calls    map[string]int
}

func NewChain(clock *Clock) *Chain {
	return &Chain{
		clock:    clock,
		balances: make(map[types.AssetID]sdkmath.Int),
		faults:   make(map[string]fault),
		calls:    make(map[string]int),
	}
}

func (c *Chain) Clock() *Clock {
	return c.clock
}

// Mint credits the custody account out of thin air. Used for fixtures.
func (c *Chain) Mint(id types.AssetID, amount sdkmath.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(id, amount)
}

// Balance returns the custody account's raw balance of an asset.
func (c *Chain) Balance(id types.AssetID) sdkmath.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance(id)
}

// BalanceOf implements venue.TokenReader.
func (c *Chain) BalanceOf(ctx context.Context, asset types.Asset) (sdkmath.Int, error) {
	if err := c.enter(ctx, "token", "balance_of"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return c.Balance(asset.ID), nil
}

// Fail makes the next call of venueName.op return err without side effects.
func (c *Chain) Fail(venueName, op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.faults[venueName+"."+op]
	f.err = err
	c.faults[venueName+"."+op] = f
}

// Stall makes the next call of venueName.op block for d or until its context ends.
func (c *Chain) Stall(venueName, op string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.faults[venueName+"."+op]
	f.delay = d
	c.faults[venueName+"."+op] = f
}

// Calls returns how many times venueName.op was entered.
func (c *Chain) Calls(venueName, op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[venueName+"."+op]
}

// enter records the call and applies any injected fault. It must be called
// without the lock held.
func (c *Chain) enter(ctx context.Context, venueName, op string) error {
	key := venueName + "." + op
	c.mu.Lock()
	c.calls[key]++
	f, ok := c.faults[key]
	delete(c.faults, key)
	c.mu.Unlock()

	if ok && f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ok && f.err != nil {
		return f.err
	}
	return ctx.Err()
}

func (c *Chain) balance(id types.AssetID) sdkmath.Int {
	if amt, ok := c.balances[id]; ok {
		return amt
	}
	return sdkmath.ZeroInt()
}

func (c *Chain) credit(id types.AssetID, amount sdkmath.Int) {
	c.balances[id] = c.balance(id).Add(amount)
}

// require checks that every debit can be covered before any state changes.
func (c *Chain) require(debits map[types.AssetID]sdkmath.Int) error {
	for id, amt := range debits {
		if have := c.balance(id); have.LT(amt) {
			return fmt.Errorf("%w: %s balance %s below %s", types.ErrInsufficientBalance, id, have, amt)
		}
	}
	return nil
}

func (c *Chain) debit(id types.AssetID, amount sdkmath.Int) {
	c.balances[id] = c.balance(id).Sub(amount)
}
