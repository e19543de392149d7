package model

import (
	"fmt"
	"strconv"
)

// Variant selects one of the engine's six routing problems. It is passed to
// the engine unchanged as its 1-based index.
type Variant int

// Routing problem variants, in the order the engine numbers them.
const (
	VariantShortestDistance Variant = iota + 1
	VariantCheapestCarMetro
	VariantCheapestAllModes
	VariantCostWithWaits
	VariantFastestScheduled
	VariantHardDeadline
)

var variantNames = map[Variant]string{
	VariantShortestDistance: "Shortest Distance (Car Only)",
	VariantCheapestCarMetro: "Cheapest Cost (Car/Metro)",
	VariantCheapestAllModes: "Cheapest Cost (All Modes)",
	VariantCostWithWaits:    "Cost with Wait Times",
	VariantFastestScheduled: "Fastest Time with Schedules",
	VariantHardDeadline:     "Hard Deadline Route",
}

// Variants lists every variant in engine order.
func Variants() []Variant {
	return []Variant{
		VariantShortestDistance,
		VariantCheapestCarMetro,
		VariantCheapestAllModes,
		VariantCostWithWaits,
		VariantFastestScheduled,
		VariantHardDeadline,
	}
}

// Valid reports whether v is one of the six known variants.
func (v Variant) Valid() bool {
	_, ok := variantNames[v]
	return ok
}

// Index returns the engine argument for v.
func (v Variant) Index() string {
	return strconv.Itoa(int(v))
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return fmt.Sprintf("%d. %s", int(v), name)
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Name returns the display name without the numeric prefix.
func (v Variant) Name() string {
	return variantNames[v]
}

// ParseVariant converts a 1-based index into a Variant.
func ParseVariant(s string) (Variant, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse variant %q: %w", s, err)
	}
	v := Variant(n)
	if !v.Valid() {
		return 0, fmt.Errorf("variant %d out of range 1..%d", n, len(variantNames))
	}
	return v, nil
}
