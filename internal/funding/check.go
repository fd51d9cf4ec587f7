package funding

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInsufficientFunds 表示余额不足以覆盖计划总支付额，必须在任何提交之前拦截。
var ErrInsufficientFunds = errors.New("funding: 余额不足")

// Requirement 描述执行一份计划前所需的授权动作。
type Requirement struct {
	TotalPay      *big.Int `json:"total_pay"`
	Balance       *big.Int `json:"balance"`
	Allowance     *big.Int `json:"allowance"`
	NeedsApproval bool     `json:"needs_approval"`
	ApproveAmount *big.Int `json:"approve_amount,omitempty"`
}

// Check 根据计划总支付额、当前余额与当前授权额度计算最小授权动作。
//
// 授权只增不减：已有额度足够时不产生任何动作，避免影响并发的其他意图；
// 余额不足时直接失败，防止把一份无法兑付的计划提交到一半。
func Check(totalPay, balance, allowance *big.Int) (Requirement, error) {
	if totalPay == nil || totalPay.Sign() < 0 {
		return Requirement{}, fmt.Errorf("funding: 总支付额不合法: %s", totalPay)
	}
	if balance == nil || allowance == nil {
		return Requirement{}, errors.New("funding: 余额或授权额度缺失")
	}

	req := Requirement{
		TotalPay:  new(big.Int).Set(totalPay),
		Balance:   new(big.Int).Set(balance),
		Allowance: new(big.Int).Set(allowance),
	}

	if balance.Cmp(totalPay) < 0 {
		return req, fmt.Errorf("%w: 需要 %s, 现有 %s", ErrInsufficientFunds, totalPay, balance)
	}

	if allowance.Cmp(totalPay) < 0 {
		req.NeedsApproval = true
		req.ApproveAmount = new(big.Int).Set(totalPay)
	}

	return req, nil
}
