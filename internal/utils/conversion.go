/*
This file contains common utility functions for SDK math operations: basis
point arithmetic used across the registry, analyzer and router, plus precision
handling when rendering integer amounts for display.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrInvalidBps       = errors.New("basis points out of range")
)

// BpsDenominator is the full-scale basis point denominator.
const BpsDenominator = 10000

// PortionBps returns amount*bps/10000, truncating toward zero.
func PortionBps(amount sdkmath.Int, bps int64) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if bps < 0 || bps > BpsDenominator {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return amount.MulRaw(bps).QuoRaw(BpsDenominator), nil
}

// RatioBps returns part*10000/total, or 0 when total is zero.
func RatioBps(part, total sdkmath.Int) int64 {
	if part.IsNil() || total.IsNil() || total.IsZero() {
		return 0
	}
	return part.MulRaw(BpsDenominator).Quo(total).Int64()
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}
