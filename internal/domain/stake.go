package domain

// PlanFlag marks a quality issue on a stake plan.
type PlanFlag string

const (
	// FlagRoundingSkipped: the rounding unit exceeded the wager.
	FlagRoundingSkipped PlanFlag = "rounding_skipped"
	// FlagRemainderRedistributed: the last outcome's remainder was spread over
	// the others and its stake set to zero.
	FlagRemainderRedistributed PlanFlag = "remainder_redistributed"
	// FlagGuaranteeLost: some outcome returns less than the total stake.
	FlagGuaranteeLost PlanFlag = "guarantee_lost"
	// FlagUnbalanced: returns differ by more than a cent.
	FlagUnbalanced PlanFlag = "unbalanced_returns"
	// FlagNegativeStake: redistributing a negative remainder pushed a stake
	// below zero. The plan cannot be placed as is.
	FlagNegativeStake PlanFlag = "negative_stake"
)

// Stake is the allocation for one outcome.
type Stake struct {
	Outcome   string  `json:"outcome"`
	Bookmaker string  `json:"bookmaker"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"stake"`
	Return    float64 `json:"return"`
}

// StakePlan is a per-outcome allocation of a wager.
type StakePlan struct {
	Status        Status     `json:"status"`
	Reason        Reason     `json:"reason,omitempty"`
	Wager         float64    `json:"wager"`
	Rounding      float64    `json:"rounding"`
	Stakes        []Stake    `json:"stakes"`
	TotalStake    float64    `json:"total_stake"`
	MinReturn     float64    `json:"min_return"`
	MaxReturn     float64    `json:"max_return"`
	Profit        float64    `json:"profit"`
	ProfitPercent float64    `json:"profit_percent"`
	Flags         []PlanFlag `json:"flags,omitempty"`
}

// Has reports whether the plan carries flag f.
func (p StakePlan) Has(f PlanFlag) bool {
	for _, got := range p.Flags {
		if got == f {
			return true
		}
	}
	return false
}

// Degraded reports whether the plan no longer pays out evenly or at a profit.
func (p StakePlan) Degraded() bool {
	return p.Has(FlagRemainderRedistributed) || p.Has(FlagGuaranteeLost) ||
		p.Has(FlagUnbalanced) || p.Has(FlagNegativeStake)
}
