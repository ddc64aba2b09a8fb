// Package navigation computes the exact sequence of user inputs a device is
// expected to require for a given review flow. It performs no device
// communication; the plans it produces are driven by a Navigator.
package navigation

import (
	"fmt"
	"strings"
)

// Step is a single abstract user input on the device screen.
type Step string

const (
	// Compact (button-based) devices.
	RightClick Step = "right-click"
	BothClick  Step = "both-click"

	// Paged (touchscreen) devices.
	ReviewTap     Step = "review-tap"
	ReviewConfirm Step = "review-confirm"
	ReviewReject  Step = "review-reject"
	ChoiceConfirm Step = "choice-confirm"
)

// DeviceModel selects the navigation variant for a device family.
type DeviceModel int

const (
	// Compact is the small-screen family: sequential stepping with a final
	// combined confirm. The reject path is reached by stepping once past the
	// approve screen.
	Compact DeviceModel = iota
	// Paged is the touchscreen family: tap-to-continue review pages ending in
	// a single confirm, or an explicit reject plus choice confirmation.
	Paged
)

func (m DeviceModel) String() string {
	switch m {
	case Compact:
		return "compact"
	case Paged:
		return "paged"
	default:
		return fmt.Sprintf("DeviceModel(%d)", int(m))
	}
}

// CanonicalChainID is the default network. Any other chain id makes the
// device insert one extra network disclosure screen on both families.
const CanonicalChainID = 1

// StepCounts holds the per-method base review step counts for both families.
type StepCounts struct {
	Compact int
	Paged   int
}

// onChain returns the base counts adjusted for the network disclosure screen.
func (c StepCounts) onChain(chainID uint64) StepCounts {
	if chainID != CanonicalChainID {
		c.Compact++
		c.Paged++
	}
	return c
}

// Plan returns the ordered inputs expected to drive a review with [base]
// steps to completion on [model], approving unless [reject] is set.
func Plan(model DeviceModel, base StepCounts, chainID uint64, reject bool) []Step {
	counts := base.onChain(chainID)

	var steps []Step
	if model == Compact {
		for i := 0; i < counts.Compact; i++ {
			steps = append(steps, RightClick)
		}
		if reject {
			steps = append(steps, RightClick)
		}
		steps = append(steps, BothClick)
		return steps
	}
	for i := 0; i < counts.Paged; i++ {
		steps = append(steps, ReviewTap)
	}
	if reject {
		steps = append(steps, ReviewReject, ChoiceConfirm)
	} else {
		steps = append(steps, ReviewConfirm)
	}
	return steps
}

// SnapshotName derives the deterministic reference snapshot name for a
// scenario, e.g. "erc721_safetransferfrom_1" or "erc1155_approve_5-rejected".
func SnapshotName(plugin, method string, chainID uint64, reject bool) string {
	name := fmt.Sprintf("%s_%s_%d", strings.ToLower(plugin), strings.ToLower(method), chainID)
	if reject {
		name += "-rejected"
	}
	return name
}

// Navigator drives a device screen through a plan and checks every
// intermediate screen against the stored references for [name]. A call may
// arrive while the signing request is still in flight: implementations watch
// the screen and start stepping once the review opens.
type Navigator interface {
	NavigateAndCompare(name string, steps []Step) error
}
