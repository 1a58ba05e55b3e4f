/*
This file contains common utility functions for converting between raw integer amounts
and human-scale amounts, and for scaling amounts between asset precisions.

Raw amounts are the only unit used for accounting. The human forms exist for reporting
and for parsing operator input.
*/

package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrInvalidAmount    = errors.New("amount is not a valid decimal number")
)

// LegacyDec carries 18 fractional digits, so exact normalization stops there.
const maxDecPrecision = 18

// Pow10 returns 10^exp as an SDK Int.
func Pow10(exp int) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
}

// Normalize converts a raw amount to its human-scale value (raw / 10^decimals).
// The result is exact for precisions up to 18; above that, digits past the
// 18th fractional place are truncated.
func Normalize(raw sdkmath.Int, decimals int) (sdkmath.LegacyDec, error) {
	if err := checkRaw(raw); err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if decimals < 0 || decimals > types.MaxDecimals {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %d", ErrInvalidPrecision, decimals)
	}
	if decimals > maxDecPrecision {
		raw = raw.Quo(Pow10(decimals - maxDecPrecision))
		decimals = maxDecPrecision
	}
	return sdkmath.LegacyNewDecFromIntWithPrec(raw, int64(decimals)), nil
}

// NormalizeWhole returns the whole human units in a raw amount, floored.
func NormalizeWhole(raw sdkmath.Int, decimals int) (sdkmath.Int, error) {
	if err := checkRaw(raw); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if decimals < 0 || decimals > types.MaxDecimals {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", ErrInvalidPrecision, decimals)
	}
	return raw.Quo(Pow10(decimals)), nil
}

// Denormalize converts a human-scale amount to raw units, flooring any
// fraction of the smallest unit.
func Denormalize(human sdkmath.LegacyDec, decimals int) (sdkmath.Int, error) {
	if human.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if human.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if decimals < 0 || decimals > types.MaxDecimals {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", ErrInvalidPrecision, decimals)
	}
	return human.MulInt(Pow10(decimals)).TruncateInt(), nil
}

// DenormalizeExact is Denormalize that refuses to drop fractional smallest units.
func DenormalizeExact(human sdkmath.LegacyDec, decimals int) (sdkmath.Int, error) {
	raw, err := Denormalize(human, decimals)
	if err != nil {
		return raw, err
	}
	if !human.MulInt(Pow10(decimals)).IsInteger() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s has more than %d fractional digits", types.ErrPrecision, human, decimals)
	}
	return raw, nil
}

// ParseHumanAmount parses a decimal string such as "1000.5" into raw units.
// Digits beyond the asset precision must be zero.
func ParseHumanAmount(s string, decimals int) (sdkmath.Int, error) {
	if decimals < 0 || decimals > types.MaxDecimals {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", ErrInvalidPrecision, decimals)
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		if strings.Trim(frac[decimals:], "0") != "" {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %q has more than %d fractional digits", types.ErrPrecision, s, decimals)
		}
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return sdkmath.ZeroInt(), nil
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	raw, ok := sdkmath.NewIntFromString(digits)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return raw, nil
}

// FormatHuman renders a raw amount as an exact decimal string without trailing zeros.
func FormatHuman(raw sdkmath.Int, decimals int) string {
	if raw.IsNil() {
		return "0"
	}
	neg := raw.IsNegative()
	digits := raw.Abs().String()
	if decimals > 0 {
		if len(digits) <= decimals {
			digits = strings.Repeat("0", decimals-len(digits)+1) + digits
		}
		point := len(digits) - decimals
		whole, frac := digits[:point], strings.TrimRight(digits[point:], "0")
		digits = whole
		if frac != "" {
			digits += "." + frac
		}
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// ScaleDecimals rescales a raw amount between precisions, flooring when the
// target precision is smaller.
func ScaleDecimals(raw sdkmath.Int, from, to int) sdkmath.Int {
	switch {
	case from == to:
		return raw
	case to > from:
		return raw.Mul(Pow10(to - from))
	default:
		return raw.Quo(Pow10(from - to))
	}
}

func checkRaw(raw sdkmath.Int) error {
	if raw.IsNil() {
		return ErrAmountNil
	}
	if raw.IsNegative() {
		return ErrAmountNegative
	}
	return nil
}
