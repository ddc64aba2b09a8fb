package client

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxParams are the fields of a legacy transaction submitted for signing.
type TxParams struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       common.Address
	Value    *big.Int
	Data     []byte
	ChainID  *big.Int
}

// encodeForSigning produces the EIP-155 signing payload: the RLP list
// [nonce, gasPrice, gas, to, value, data, chainID, 0, 0]. The device hashes
// and signs exactly these bytes.
func (p *TxParams) encodeForSigning() ([]byte, error) {
	if p.ChainID == nil {
		return nil, errors.New("chain id is required")
	}
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	return rlp.EncodeToBytes([]interface{}{
		p.Nonce,
		p.GasPrice,
		p.Gas,
		p.To,
		value,
		p.Data,
		p.ChainID,
		big.NewInt(0),
		big.NewInt(0),
	})
}

// Signature is the (v, r, s) triple returned by the device.
type Signature struct {
	V byte
	R [32]byte
	S [32]byte
}

// parseSignature splits a 65-byte device reply into the signature triple.
func parseSignature(reply []byte) (*Signature, error) {
	if len(reply) != 65 {
		return nil, errors.New("reply lacks signature")
	}
	sig := &Signature{V: reply[0]}
	copy(sig.R[:], reply[1:33])
	copy(sig.S[:], reply[33:65])
	return sig, nil
}
