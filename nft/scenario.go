package nft

import (
	"github.com/bob-collective/app-ethereum/navigation"
)

// Scenario is one independently runnable conformance case: a collection, a
// contract call and the simulated user's decision.
type Scenario struct {
	Plugin     string
	Collection Collection
	Action     Action
	Reject     bool
}

// Name returns the deterministic snapshot name identifying the scenario's
// reference screens.
func (s Scenario) Name() string {
	return navigation.SnapshotName(s.Plugin, s.Action.Method, s.Collection.ChainID, s.Reject)
}

// Scenarios builds the explicit cross-product of the fixture registry:
// every (collection, action) pair of every standard on the accept path,
// plus one reject scenario per standard reusing its first collection and
// action. Rejection is sampled rather than crossed to keep runtime bounded.
func Scenarios() ([]Scenario, error) {
	standards, err := Standards()
	if err != nil {
		return nil, err
	}
	var scenarios []Scenario
	for _, std := range standards {
		for _, collection := range std.Collections {
			for _, action := range std.Actions {
				scenarios = append(scenarios, Scenario{
					Plugin:     std.Plugin,
					Collection: collection,
					Action:     action,
				})
			}
		}
		scenarios = append(scenarios, Scenario{
			Plugin:     std.Plugin,
			Collection: std.Collections[0],
			Action:     std.Actions[0],
			Reject:     true,
		})
	}
	return scenarios, nil
}
