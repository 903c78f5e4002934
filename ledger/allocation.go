/*
allocation.go - Allocation strategy resolver

PURPOSE:
  Splits one payment amount across a worker's open debts. Pure
  function: no I/O, no side effects. The orchestrator persists the
  resulting plan inside its transaction.

STRATEGIES:
  equal        share = amount / count, each debt capped at its balance
  proportional each debt gets balance/total * amount
  auto         proportional when the amount cannot cover everything

FULL PAYOFF:
  When the amount covers the sum of all balances, every debt is
  allocated exactly its balance regardless of strategy.

REMAINDER POLICY:
  Under the equal strategy a debt smaller than its share caps out and
  leaves part of the amount unallocated. Historically that leftover
  was silently kept (not redistributed), under-allocating relative to
  the request. The policy is now an explicit parameter:
    RemainderKeep          keep the leftover unallocated (legacy)
    RemainderRedistribute  re-split leftover across uncapped debts
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

type Strategy string

const (
	StrategyEqual        Strategy = "equal"
	StrategyProportional Strategy = "proportional"
	StrategyAuto         Strategy = "auto"
)

// ValidStrategy reports whether s names a known allocation strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyEqual, StrategyProportional, StrategyAuto:
		return true
	}
	return false
}

type RemainderPolicy string

const (
	RemainderKeep         RemainderPolicy = "keep"
	RemainderRedistribute RemainderPolicy = "redistribute"
)

// Allocation is one debt's slice of the plan.
type Allocation struct {
	DebtID        DebtID
	Amount        Money
	BalanceBefore Money
	BalanceAfter  Money
}

// Plan is the result of resolving a strategy against a set of debts.
type Plan struct {
	Allocations    []Allocation
	TotalAllocated Money
	Remaining      Money // requested amount left unallocated
}

// Allocate resolves the per-debt allocation plan for one payment
// amount. Debts are considered oldest DateIncurred first. Debts with a
// non-positive balance are skipped. An empty input yields an empty plan.
func Allocate(openDebts []Debt, amount Money, strategy Strategy, remainder RemainderPolicy) Plan {
	debts := make([]Debt, 0, len(openDebts))
	for _, d := range openDebts {
		if d.Balance.IsPositive() {
			debts = append(debts, d)
		}
	}
	sort.SliceStable(debts, func(i, j int) bool {
		return debts[i].DateIncurred.Before(debts[j].DateIncurred)
	})

	if len(debts) == 0 || !amount.IsPositive() {
		return Plan{Remaining: amount.ClampZero()}
	}

	total := ZeroMoney()
	for _, d := range debts {
		total = total.Add(d.Balance)
	}

	// Full payoff: every debt gets its entire balance.
	if amount.GreaterThanOrEqual(total) {
		return buildPlan(debts, func(d Debt) Money { return d.Balance }, amount)
	}

	switch strategy {
	case StrategyEqual:
		return allocateEqual(debts, amount, remainder)
	default:
		// proportional, and auto with an insufficient amount
		return allocateProportional(debts, amount, total)
	}
}

func allocateEqual(debts []Debt, amount Money, remainder RemainderPolicy) Plan {
	shares := make([]Money, len(debts))
	count := decimal.NewFromInt(int64(len(debts)))
	// Round the share down: count rounded-up shares would sum past the
	// requested amount.
	share := amount.Div(count).RoundDown2()
	for i, d := range debts {
		shares[i] = share.Min(d.Balance)
	}

	if remainder == RemainderRedistribute {
		// Re-split the leftover across debts that still have headroom.
		// Each pass either exhausts the leftover or caps at least one
		// more debt, so the loop terminates.
		for pass := 0; pass < len(debts); pass++ {
			allocated := ZeroMoney()
			for _, s := range shares {
				allocated = allocated.Add(s)
			}
			leftover := amount.Sub(allocated)
			if !leftover.IsPositive() {
				break
			}
			open := 0
			for i, d := range debts {
				if shares[i].LessThan(d.Balance) {
					open++
				}
			}
			if open == 0 {
				break
			}
			extra := leftover.Div(decimal.NewFromInt(int64(open))).RoundDown2()
			if !extra.IsPositive() {
				// Sub-cent leftover: hand all of it to the oldest debt
				// with headroom instead of splitting further.
				for i, d := range debts {
					if shares[i].LessThan(d.Balance) {
						shares[i] = shares[i].Add(leftover).Min(d.Balance)
						break
					}
				}
				continue
			}
			for i, d := range debts {
				if !leftover.IsPositive() {
					break
				}
				if shares[i].LessThan(d.Balance) {
					add := extra.Min(leftover).Min(d.Balance.Sub(shares[i]))
					shares[i] = shares[i].Add(add)
					leftover = leftover.Sub(add)
				}
			}
		}
	}

	i := 0
	return buildPlan(debts, func(Debt) Money { s := shares[i]; i++; return s }, amount)
}

func allocateProportional(debts []Debt, amount, total Money) Plan {
	allocated := ZeroMoney()
	amounts := make([]Money, len(debts))
	for i, d := range debts {
		if i == len(debts)-1 {
			// The last debt absorbs the rounding residue so the plan
			// sums to the requested amount exactly.
			amounts[i] = amount.Sub(allocated).Min(d.Balance)
		} else {
			amounts[i] = d.Balance.Div(total.Value).Mul(amount.Value).RoundDown2().Min(d.Balance)
		}
		allocated = allocated.Add(amounts[i])
	}
	i := 0
	return buildPlan(debts, func(Debt) Money { a := amounts[i]; i++; return a }, amount)
}

func buildPlan(debts []Debt, amountFor func(Debt) Money, requested Money) Plan {
	plan := Plan{TotalAllocated: ZeroMoney()}
	for _, d := range debts {
		a := amountFor(d)
		if !a.IsPositive() {
			continue
		}
		plan.Allocations = append(plan.Allocations, Allocation{
			DebtID:        d.ID,
			Amount:        a,
			BalanceBefore: d.Balance,
			BalanceAfter:  d.Balance.Sub(a).ClampZero(),
		})
		plan.TotalAllocated = plan.TotalAllocated.Add(a)
	}
	plan.Remaining = requested.Sub(plan.TotalAllocated).ClampZero()
	return plan
}
