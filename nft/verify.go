package nft

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/bob-collective/app-ethereum/client"
)

// RecoverSigner reconstructs the exact payload the device signed and
// recovers the signer address from the returned (v, r, s). The v byte is
// normalized back to a recovery id with the same wrapping arithmetic the
// device applies when composing it.
func RecoverSigner(p *client.TxParams, sig *client.Signature) (common.Address, error) {
	if p.ChainID == nil {
		return common.Address{}, errors.New("chain id is required to recover an EIP-155 signature")
	}
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	to := p.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    p.Nonce,
		GasPrice: p.GasPrice,
		Gas:      p.Gas,
		To:       &to,
		Value:    value,
		Data:     p.Data,
	})

	raw := make([]byte, 65)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V - byte(p.ChainID.Uint64()*2+35)

	signer := types.NewEIP155Signer(p.ChainID)
	signed, err := tx.WithSignature(signer, raw)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "apply signature")
	}
	addr, err := types.Sender(signer, signed)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recover sender")
	}
	return addr, nil
}
