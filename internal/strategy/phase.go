package strategy

import "fmt"

// Phase is the trading lifecycle state of a Controller.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePrepareToBuy
	PhaseReadyToBuy
	PhasePrepareToSell // holding a position ("Bought")
	PhaseReadyToSellGain
	PhaseReadyToSellLoss
	PhaseSold
)

var phaseNames = [...]string{
	PhaseInit:            "Init",
	PhasePrepareToBuy:    "PrepareToBuy",
	PhaseReadyToBuy:      "ReadyToBuy",
	PhasePrepareToSell:   "PrepareToSell",
	PhaseReadyToSellGain: "ReadyToSellGain",
	PhaseReadyToSellLoss: "ReadyToSellLoss",
	PhaseSold:            "Sold",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Holding reports whether the phase is one where a position is open.
func (p Phase) Holding() bool {
	return p == PhasePrepareToSell || p == PhaseReadyToSellGain || p == PhaseReadyToSellLoss
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	if s == "Bought" {
		return PhasePrepareToSell, nil
	}
	return 0, fmt.Errorf("strategy: unknown phase %q", s)
}
