package common

import (
	"errors"
	"math"
	"math/big"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaAmountExceeded   = errors.New("quota amount cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an account.
type QuotaNow struct {
	ReqCount   uint32
	AmountUsed *big.Int
	EpochID    uint64
}

// MintQuota defines the issuance limits enforced per account and epoch.
type MintQuota struct {
	MaxRequestsPerEpoch uint32
	MaxAmountPerEpoch   *big.Int
	EpochSeconds        uint32
}

// Enabled reports whether any quota dimension is configured.
func (q MintQuota) Enabled() bool {
	if q.MaxRequestsPerEpoch > 0 {
		return true
	}
	return q.MaxAmountPerEpoch != nil && q.MaxAmountPerEpoch.Sign() > 0
}

// CheckMintQuota verifies whether the additional request and issuance amount fit
// within the configured quota. The returned QuotaNow reflects the updated
// counters when the quota is not exceeded; on denial the previous counters are
// returned unchanged.
func CheckMintQuota(q MintQuota, nowEpoch uint64, prev QuotaNow, addReq uint32, addAmount *big.Int) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}
	if next.AmountUsed == nil {
		next.AmountUsed = big.NewInt(0)
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addAmount != nil && addAmount.Sign() > 0 {
		next.AmountUsed = new(big.Int).Add(next.AmountUsed, addAmount)
	}
	if q.MaxAmountPerEpoch != nil && q.MaxAmountPerEpoch.Sign() > 0 && next.AmountUsed.Cmp(q.MaxAmountPerEpoch) > 0 {
		return prev, ErrQuotaAmountExceeded
	}

	return next, nil
}
