// Package nft orchestrates end-to-end NFT signing conformance scenarios:
// it registers plugin metadata with the device, submits signing requests,
// drives the expected on-screen navigation and verifies the returned
// signature against the device's own address.
package nft

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/bob-collective/app-ethereum/navigation"
)

// Collection is an NFT contract under test.
type Collection struct {
	Address common.Address
	Name    string
	ChainID uint64
	ABI     *abi.ABI
}

// Action is one contract call to exercise against a collection.
type Action struct {
	// Method is the on-chain method name, used for snapshot naming.
	Method string
	// abiMethod is the key into the ABI method set; overloaded methods get
	// a numeric suffix in parse order.
	abiMethod string
	Args      []interface{}
	// Steps are the published base review step counts for the method.
	Steps navigation.StepCounts
}

// Encode produces the ABI-encoded call data for the action against the
// collection's interface.
func (a Action) Encode(c Collection) ([]byte, error) {
	data, err := c.ABI.Pack(a.abiMethod, a.Args...)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", a.Method)
	}
	return data, nil
}

// Selector extracts the 4-byte method selector from encoded call data.
func Selector(data []byte) ([4]byte, error) {
	var sel [4]byte
	if len(data) < 4 {
		return sel, errors.Errorf("call data too short for a selector: %d bytes", len(data))
	}
	copy(sel[:], data[:4])
	return sel, nil
}
