package pool

import (
	"math/big"

	"github.com/defistate/clmm-engine-go/clmm/fullmath"
)

// FlashReceipt records an outstanding flash loan. Like the swap
// Receipt it is single-use and bound to the issuing pool; the fees are
// fixed at issuance.
type FlashReceipt struct {
	pool    *Pool
	amountX uint64
	amountY uint64
	feeX    uint64
	feeY    uint64
	settled bool
}

// Owed returns the total amounts due back to the pool, fees included.
func (r *FlashReceipt) Owed() (uint64, uint64) {
	return r.amountX + r.feeX, r.amountY + r.feeY
}

func (r *FlashReceipt) Fees() (uint64, uint64) {
	return r.feeX, r.feeY
}

// Flash lends the requested amounts and locks the pool until the
// receipt is settled with RepayFlash. The fee on each side is the pool
// fee rate applied to the borrowed amount, rounded up.
func (p *Pool) Flash(amountX, amountY uint64) (*FlashReceipt, error) {
	if err := p.requireUnlocked(); err != nil {
		return nil, err
	}

	feeX, err := flashFee(amountX, p.feeRate)
	if err != nil {
		return nil, err
	}
	feeY, err := flashFee(amountY, p.feeRate)
	if err != nil {
		return nil, err
	}
	if _, ok := fullmath.CheckedAddU64(amountX, feeX); !ok {
		return nil, ErrAmountOverflow
	}
	if _, ok := fullmath.CheckedAddU64(amountY, feeY); !ok {
		return nil, ErrAmountOverflow
	}

	receipt := &FlashReceipt{
		pool:    p,
		amountX: amountX,
		amountY: amountY,
		feeX:    feeX,
		feeY:    feeY,
	}
	p.lock()
	p.pendingFlash = receipt
	return receipt, nil
}

// RepayFlash settles a flash loan. The payment must cover principal
// plus fee on both sides; the fees are then credited to in-range
// liquidity and the protocol skim. Underpayment fails and leaves the
// pool locked: recovery is the surrounding transaction's
// responsibility, not the pool's.
func (p *Pool) RepayFlash(receipt *FlashReceipt, paidX, paidY uint64) error {
	if receipt == nil || receipt.pool != p || receipt != p.pendingFlash {
		return ErrReceiptMismatch
	}
	if receipt.settled {
		return ErrReceiptSettled
	}
	if paidX < receipt.amountX+receipt.feeX || paidY < receipt.amountY+receipt.feeY {
		return ErrInsufficientInput
	}

	if err := p.creditFee(receipt.feeX, p.feeProtocolX, p.feeGrowthGlobalX, &p.protocolFeesX); err != nil {
		return err
	}
	if err := p.creditFee(receipt.feeY, p.feeProtocolY, p.feeGrowthGlobalY, &p.protocolFeesY); err != nil {
		return err
	}

	receipt.settled = true
	p.unlock()
	return nil
}

// creditFee splits a collected fee between the protocol counter and
// the per-liquidity growth accumulator. With no liquidity in range the
// whole fee goes to the protocol: there is nobody to credit.
func (p *Pool) creditFee(fee uint64, feeProtocol uint8, growthGlobal *big.Int, protocolFees *uint64) error {
	if fee == 0 {
		return nil
	}
	if p.liquidity.Sign() == 0 {
		*protocolFees += fee
		return nil
	}
	if feeProtocol > 0 {
		skim := fee / uint64(feeProtocol)
		*protocolFees += skim
		fee -= skim
	}

	delta := new(big.Int).SetUint64(fee)
	if err := fullmath.MulDiv(delta, delta, fullmath.Q64, p.liquidity); err != nil {
		return err
	}
	fullmath.WrappingAddU128(growthGlobal, growthGlobal, delta)
	return nil
}

// flashFee is the borrow fee for one side, rounded up so the pool
// never undercharges.
func flashFee(amount uint64, feeRate uint32) (uint64, error) {
	if amount == 0 || feeRate == 0 {
		return 0, nil
	}
	fee := new(big.Int).SetUint64(amount)
	fee.Mul(fee, new(big.Int).SetUint64(uint64(feeRate)))
	if err := fullmath.DivRoundingUp(fee, fee, feeDenominator); err != nil {
		return 0, err
	}
	if !fee.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return fee.Uint64(), nil
}
