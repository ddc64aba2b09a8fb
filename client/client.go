// Package client speaks the Ethereum app command set of a Ledger-style
// signing device over an abstract APDU transport. The wire protocol follows
// the app's documented command surface; framing below the APDU level is the
// transport's business.
package client

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	ledger_go "github.com/zondax/ledger-go"
)

// Transport is the low-level device backend: it exchanges one APDU at a time
// and returns the reply payload, or an error for any non-success status.
// ledger_go.LedgerDevice satisfies it.
type Transport interface {
	Exchange(apdu []byte) ([]byte, error)
	Close() error
}

const (
	claEthereum = 0xE0

	insGetPublicKey          = 0x02
	insSignTransaction       = 0x04
	insGetConfiguration      = 0x06
	insProvideNFTInformation = 0x14
	insSetPlugin             = 0x16

	p1ConfirmAddress = 0x01
	p1FirstChunk     = 0x00
	p1FollowingChunk = 0x80

	// Sign payloads are streamed in chunks of at most this many bytes.
	signChunkSize = 255
)

// EthApp is a client for the Ethereum app running on a signing device.
type EthApp struct {
	transport Transport
	log       log.Logger
}

// New wraps an already-open transport.
func New(t Transport) *EthApp {
	return &EthApp{
		transport: t,
		log:       log.New("module", "ethapp"),
	}
}

// Connect attempts to reach the first Ledger device over HID.
func Connect() (*EthApp, error) {
	admin := ledger_go.NewLedgerAdmin()
	device, err := admin.Connect(0)
	if err != nil {
		return nil, mapTransportError(err)
	}
	return New(device), nil
}

// Close releases the underlying transport.
func (a *EthApp) Close() error {
	return a.transport.Close()
}

// exchange sends one APDU and returns the reply payload.
func (a *EthApp) exchange(ins, p1, p2 byte, data []byte) ([]byte, error) {
	if len(data) > 0xFF {
		return nil, fmt.Errorf("apdu payload too large: %d bytes", len(data))
	}
	apdu := append([]byte{claEthereum, ins, p1, p2, byte(len(data))}, data...)
	a.log.Trace("APDU sent", "data", hexutil.Bytes(apdu))
	reply, err := a.transport.Exchange(apdu)
	if err != nil {
		return nil, mapTransportError(err)
	}
	a.log.Trace("APDU reply", "data", hexutil.Bytes(reply))
	return reply, nil
}

// GetConfiguration returns the app version triple and its feature flags.
func (a *EthApp) GetConfiguration() (version [3]byte, flags byte, err error) {
	reply, err := a.exchange(insGetConfiguration, 0, 0, nil)
	if err != nil {
		return version, 0, err
	}
	if len(reply) != 4 {
		return version, 0, errors.New("invalid configuration reply")
	}
	copy(version[:], reply[1:])
	return version, reply[0], nil
}

// GetPublicAddress asks the device for the public key and address at [path].
// With display unset the device answers without user interaction. The reply
// layout is [pkLen | pk | addrLen | ascii-hex address].
func (a *EthApp) GetPublicAddress(path accounts.DerivationPath, display bool) ([]byte, common.Address, error) {
	pathBytes, err := SerializePath(path)
	if err != nil {
		return nil, common.Address{}, err
	}
	var p1 byte
	if display {
		p1 = p1ConfirmAddress
	}
	reply, err := a.exchange(insGetPublicKey, p1, 0, pathBytes)
	if err != nil {
		return nil, common.Address{}, err
	}

	if len(reply) < 1 || len(reply) < 1+int(reply[0]) {
		return nil, common.Address{}, errors.New("reply lacks public key entry")
	}
	pubkey := reply[1 : 1+int(reply[0])]
	reply = reply[1+int(reply[0]):]

	if len(reply) < 1 || len(reply) < 1+int(reply[0]) {
		return nil, common.Address{}, errors.New("reply lacks address entry")
	}
	hexstr := reply[1 : 1+int(reply[0])]
	var address common.Address
	if _, err := hex.Decode(address[:], hexstr); err != nil {
		return nil, common.Address{}, fmt.Errorf("malformed address entry: %v", err)
	}
	return pubkey, address, nil
}

// SetPlugin tells the device to apply specialized parsing and display for
// calls to [selector] on [contract]. It must complete before a signing
// request referencing the selector arrives.
func (a *EthApp) SetPlugin(name string, contract common.Address, selector [4]byte, chainID uint64) error {
	if len(name) > 0xFF {
		return fmt.Errorf("plugin name too long: %q", name)
	}
	data := []byte{byte(len(name))}
	data = append(data, name...)
	data = append(data, contract.Bytes()...)
	data = append(data, selector[:]...)
	data = binary.BigEndian.AppendUint64(data, chainID)
	_, err := a.exchange(insSetPlugin, 0, 0, data)
	return err
}

// ProvideNFTInformation supplies the collection display metadata the device
// shows during review. A separate primitive from SetPlugin.
func (a *EthApp) ProvideNFTInformation(name string, contract common.Address, chainID uint64) error {
	if len(name) > 0xFF {
		return fmt.Errorf("collection name too long: %q", name)
	}
	data := []byte{byte(len(name))}
	data = append(data, name...)
	data = append(data, contract.Bytes()...)
	data = binary.BigEndian.AppendUint64(data, chainID)
	_, err := a.exchange(insProvideNFTInformation, 0, 0, data)
	return err
}

// SignTransaction streams the derivation path and the EIP-155 signing
// payload to the device and blocks until the user approves or rejects on
// screen. It returns the signature triple, or a *StatusError carrying the
// device's refusal word.
func (a *EthApp) SignTransaction(path accounts.DerivationPath, tx *TxParams) (*Signature, error) {
	pathBytes, err := SerializePath(path)
	if err != nil {
		return nil, err
	}
	txrlp, err := tx.encodeForSigning()
	if err != nil {
		return nil, err
	}
	payload := append(pathBytes, txrlp...)

	var (
		p1    byte = p1FirstChunk
		reply []byte
	)
	for len(payload) > 0 {
		chunk := signChunkSize
		if chunk > len(payload) {
			chunk = len(payload)
		}
		reply, err = a.exchange(insSignTransaction, p1, 0, payload[:chunk])
		if err != nil {
			return nil, err
		}
		payload = payload[chunk:]
		p1 = p1FollowingChunk
	}
	return parseSignature(reply)
}
