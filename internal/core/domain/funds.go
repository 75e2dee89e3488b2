package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Fund Movements
// =============================================================================

var (
	amountPattern  = regexp.MustCompile(`^(0|[1-9][0-9]*)(\.[0-9]{1,18})?$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// DepositRequest bridges Amount ETH from the parent chain into the rollup,
// paid by the deployer account.
type DepositRequest struct {
	Amount string `json:"amount"` // decimal ETH, e.g. "0.25"
}

// Validate requires a positive decimal amount with at most 18 fraction digits.
func (r DepositRequest) Validate() error {
	if !amountPattern.MatchString(r.Amount) {
		return fmt.Errorf("%w: amount %q is not a decimal ETH value", ErrInvalidArgument, r.Amount)
	}
	if strings.Trim(strings.Replace(r.Amount, ".", "", 1), "0") == "" {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidArgument)
	}
	return nil
}

// RefundRequest sends the deployer's remaining rollup balance to TargetAddress.
type RefundRequest struct {
	TargetAddress string `json:"target_address"`
}

// Validate requires a 0x-prefixed 20-byte hex address.
func (r RefundRequest) Validate() error {
	if !addressPattern.MatchString(r.TargetAddress) {
		return fmt.Errorf("%w: target address %q is not a 0x-prefixed 20-byte hex address", ErrInvalidArgument, r.TargetAddress)
	}
	return nil
}
