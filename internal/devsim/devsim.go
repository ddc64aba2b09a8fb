// Package devsim is a simulated signing device. It implements the harness's
// transport and navigator interfaces as an executable model of the device
// contract: APDU parsing, per-path keys, review-screen stepping and real
// secp256k1 signing, so end-to-end scenarios run without hardware.
package devsim

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/bob-collective/app-ethereum/client"
	"github.com/bob-collective/app-ethereum/navigation"
)

const (
	claEthereum = 0xE0

	insGetPublicKey          = 0x02
	insSignTransaction       = 0x04
	insGetConfiguration      = 0x06
	insProvideNFTInformation = 0x14
	insSetPlugin             = 0x16

	p1FollowingChunk = 0x80
)

// appVersion is the Ethereum app version the simulator reports.
var appVersion = [3]byte{1, 12, 0}

// screenCounts is the number of review screens the device shows per method,
// keyed by selector, for the compact and paged families. Off the canonical
// chain both get one extra network disclosure screen.
type screenCounts struct {
	compact int
	paged   int
}

var methodScreens = map[[4]byte]screenCounts{
	{0x09, 0x5e, 0xa7, 0xb3}: {7, 3}, // approve(address,uint256)
	{0xa2, 0x2c, 0xb4, 0x65}: {6, 3}, // setApprovalForAll(address,bool)
	{0x23, 0xb8, 0x72, 0xdd}: {7, 3}, // transferFrom(address,address,uint256)
	{0x42, 0x84, 0x2e, 0x0e}: {7, 3}, // safeTransferFrom(address,address,uint256)
	{0xb8, 0x8d, 0x4f, 0xde}: {7, 3}, // safeTransferFrom(address,address,uint256,bytes)
	{0xf2, 0x42, 0x43, 0x2a}: {8, 4}, // safeTransferFrom(address,address,uint256,uint256,bytes)
	{0x2e, 0xb2, 0xc2, 0xd6}: {7, 3}, // safeBatchTransferFrom(address,address,uint256[],uint256[],bytes)
}

// plainTxScreens covers transactions with no call data.
var plainTxScreens = screenCounts{5, 2}

type pluginRegistration struct {
	name     string
	contract common.Address
	selector [4]byte
	chainID  uint64
}

type collectionInfo struct {
	name     string
	contract common.Address
	chainID  uint64
}

// signSession is one in-flight signing request waiting for user action.
type signSession struct {
	payload []byte // raw RLP signing payload, as hashed by the device
	path    []byte // serialized derivation path
	chainID uint64
	screens int // review screens before the terminal screens
	cursor  int
	choice  bool // paged family: reject choice sheet is showing
	done    chan signOutcome
}

type signOutcome struct {
	reply []byte
	err   error
}

// Device is a simulated signing device for one conformance run.
type Device struct {
	mu     sync.Mutex
	screen *sync.Cond // signals pending/signErr/closed transitions
	model  navigation.DeviceModel
	seed   []byte

	plugin     *pluginRegistration
	collection *collectionInfo

	signPath []byte
	signBuf  []byte
	pending  *signSession
	signErr  error // sign request that failed before a review opened
	closed   bool

	snapshots []string
}

// New returns a device of the given family, deriving all keys from seed.
func New(model navigation.DeviceModel, seed []byte) *Device {
	d := &Device{model: model, seed: append([]byte(nil), seed...)}
	d.screen = sync.NewCond(&d.mu)
	return d
}

// Close aborts any pending signing session so no caller stays blocked on a
// device that is going away.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	if s := d.pending; s != nil {
		d.pending = nil
		s.done <- signOutcome{err: errors.New("device closed")}
	}
	d.screen.Broadcast()
	d.mu.Unlock()
	return nil
}

// Snapshots returns the reference names the navigator was driven under, in
// order.
func (d *Device) Snapshots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.snapshots...)
}

// AddressFor returns the device address at path, for test expectations.
func (d *Device) AddressFor(path accounts.DerivationPath) (common.Address, error) {
	pathBytes, err := client.SerializePath(path)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(d.keyFor(pathBytes).PublicKey), nil
}

// keyFor derives the per-path private key: HMAC-SHA512 of the serialized
// path under the seed, reduced onto the curve order.
func (d *Device) keyFor(pathBytes []byte) *ecdsa.PrivateKey {
	mac := hmac.New(sha512.New, d.seed)
	mac.Write(pathBytes)
	sum := mac.Sum(nil)
	key := secp256k1.PrivKeyFromBytes(sum[:32]).ToECDSA()
	// geth's pure-Go signer compares the curve by identity, so the key must
	// carry geth's S256 instance rather than decred's equivalent one.
	key.Curve = crypto.S256()
	return key
}

// Exchange handles one APDU, blocking on signing until the navigator
// delivers the user's decision.
func (d *Device) Exchange(apdu []byte) ([]byte, error) {
	if len(apdu) < 5 {
		return nil, errors.New("short apdu")
	}
	cla, ins, p1 := apdu[0], apdu[1], apdu[2]
	data := apdu[5:]
	if int(apdu[4]) != len(data) {
		return nil, fmt.Errorf("apdu length field %d does not match payload %d", apdu[4], len(data))
	}
	if cla != claEthereum {
		return nil, &client.StatusError{Word: client.SWClaNotSupported}
	}

	switch ins {
	case insGetConfiguration:
		return []byte{0x00, appVersion[0], appVersion[1], appVersion[2]}, nil
	case insGetPublicKey:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.publicKeyReply(data)
	case insSetPlugin:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.setPlugin(data)
	case insProvideNFTInformation:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.provideNFTInformation(data)
	case insSignTransaction:
		done, err := d.signChunk(p1, data)
		if err != nil || done == nil {
			return nil, err
		}
		outcome := <-done
		return outcome.reply, outcome.err
	default:
		return nil, &client.StatusError{Word: client.SWInsNotSupported}
	}
}

func (d *Device) publicKeyReply(pathBytes []byte) ([]byte, error) {
	if len(pathBytes) < 1 || len(pathBytes) != 1+4*int(pathBytes[0]) {
		return nil, &client.StatusError{Word: client.SWIncorrectData}
	}
	key := d.keyFor(pathBytes)
	pub := crypto.FromECDSAPub(&key.PublicKey)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	addrHex := hex.EncodeToString(addr.Bytes())

	reply := []byte{byte(len(pub))}
	reply = append(reply, pub...)
	reply = append(reply, byte(len(addrHex)))
	reply = append(reply, addrHex...)
	return reply, nil
}

func (d *Device) setPlugin(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, &client.StatusError{Word: client.SWIncorrectData}
	}
	nameLen := int(data[0])
	if len(data) != 1+nameLen+20+4+8 {
		return nil, &client.StatusError{Word: client.SWIncorrectData}
	}
	reg := &pluginRegistration{name: string(data[1 : 1+nameLen])}
	rest := data[1+nameLen:]
	reg.contract = common.BytesToAddress(rest[:20])
	copy(reg.selector[:], rest[20:24])
	reg.chainID = beUint64(rest[24:32])
	d.plugin = reg
	return nil, nil
}

func (d *Device) provideNFTInformation(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, &client.StatusError{Word: client.SWIncorrectData}
	}
	nameLen := int(data[0])
	if len(data) != 1+nameLen+20+8 {
		return nil, &client.StatusError{Word: client.SWIncorrectData}
	}
	info := &collectionInfo{name: string(data[1 : 1+nameLen])}
	rest := data[1+nameLen:]
	info.contract = common.BytesToAddress(rest[:20])
	info.chainID = beUint64(rest[20:28])
	d.collection = info
	return nil, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// signChunk accumulates the streamed signing payload. Once the RLP list is
// complete it validates the request against the registered plugin, opens the
// review session and returns the channel the decision will arrive on. A nil
// channel with nil error means more chunks are expected.
func (d *Device) signChunk(p1 byte, data []byte) (chan signOutcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("device closed")
	}
	if d.pending != nil {
		return nil, &client.StatusError{Word: client.SWIncorrectData}
	}
	if p1 == p1FollowingChunk {
		if d.signBuf == nil {
			return d.failLocked(&client.StatusError{Word: client.SWIncorrectData})
		}
		d.signBuf = append(d.signBuf, data...)
	} else {
		d.signErr = nil
		if len(data) < 1 || len(data) < 1+4*int(data[0]) {
			return d.failLocked(&client.StatusError{Word: client.SWIncorrectData})
		}
		pathLen := 1 + 4*int(data[0])
		d.signPath = append([]byte(nil), data[:pathLen]...)
		d.signBuf = append([]byte(nil), data[pathLen:]...)
	}

	var elems []rlp.RawValue
	if err := rlp.DecodeBytes(d.signBuf, &elems); err != nil {
		// Payload incomplete, wait for the next chunk.
		return nil, nil
	}
	if len(elems) != 9 {
		return d.failLocked(&client.StatusError{Word: client.SWIncorrectData})
	}

	var to common.Address
	if err := rlp.DecodeBytes(elems[3], &to); err != nil {
		return d.failLocked(&client.StatusError{Word: client.SWIncorrectData})
	}
	var calldata []byte
	if err := rlp.DecodeBytes(elems[5], &calldata); err != nil {
		return d.failLocked(&client.StatusError{Word: client.SWIncorrectData})
	}
	var chainID uint64
	if err := rlp.DecodeBytes(elems[6], &chainID); err != nil {
		return d.failLocked(&client.StatusError{Word: client.SWIncorrectData})
	}

	screens, err := d.reviewScreens(to, calldata, chainID)
	if err != nil {
		_, err = d.failLocked(err)
		return nil, err
	}

	session := &signSession{
		payload: append([]byte(nil), d.signBuf...),
		path:    d.signPath,
		chainID: chainID,
		screens: screens,
		done:    make(chan signOutcome, 1),
	}
	d.pending = session
	d.signBuf, d.signPath = nil, nil
	d.screen.Broadcast()
	return session.done, nil
}

// failLocked records a signing request that was refused before a review
// opened, so a navigator waiting on the review screen stops waiting and
// reports it instead of the idle screen.
func (d *Device) failLocked(err error) (chan signOutcome, error) {
	d.signErr = err
	d.signBuf, d.signPath = nil, nil
	d.screen.Broadcast()
	return nil, err
}

// reviewScreens resolves the number of review screens for the transaction.
// Contract calls require a matching prior plugin registration and collection
// metadata; anything else is refused as incorrect data.
func (d *Device) reviewScreens(to common.Address, calldata []byte, chainID uint64) (int, error) {
	var counts screenCounts
	if len(calldata) == 0 {
		counts = plainTxScreens
	} else {
		if len(calldata) < 4 {
			return 0, &client.StatusError{Word: client.SWIncorrectData}
		}
		var selector [4]byte
		copy(selector[:], calldata[:4])
		if d.plugin == nil || d.plugin.selector != selector ||
			d.plugin.contract != to || d.plugin.chainID != chainID {
			return 0, &client.StatusError{Word: client.SWIncorrectData}
		}
		if d.collection == nil || d.collection.contract != to {
			return 0, &client.StatusError{Word: client.SWIncorrectData}
		}
		var ok bool
		counts, ok = methodScreens[selector]
		if !ok {
			return 0, &client.StatusError{Word: client.SWIncorrectData}
		}
	}
	n := counts.compact
	if d.model == navigation.Paged {
		n = counts.paged
	}
	if chainID != navigation.CanonicalChainID {
		n++
	}
	return n, nil
}

// NavigateAndCompare waits for a review to open, then drives it through the
// given steps under the snapshot name. Like a navigator polling the screen,
// it blocks while the signing request is still in flight and returns an error
// if the request is refused before a review appears or the device closes. A
// step that does not match the screen the device is showing fails, and the
// pending signing request is aborted with the same error.
func (d *Device) NavigateAndCompare(name string, steps []navigation.Step) error {
	d.mu.Lock()
	for d.pending == nil && d.signErr == nil && !d.closed {
		d.screen.Wait()
	}
	if d.closed {
		d.mu.Unlock()
		return errors.New("device closed")
	}
	session := d.pending
	if session == nil {
		err := d.signErr
		d.signErr = nil
		d.mu.Unlock()
		return fmt.Errorf("no signing session to review: %v", err)
	}
	d.snapshots = append(d.snapshots, name)
	d.mu.Unlock()

	for _, step := range steps {
		terminal, err := d.apply(session, step)
		if err != nil {
			d.finish(session, signOutcome{err: err})
			return err
		}
		if terminal {
			return nil
		}
	}
	err := errors.New("navigation plan ended without a terminal action")
	d.finish(session, signOutcome{err: err})
	return err
}

// apply advances the review state by one step. It reports whether the step
// resolved the session.
func (d *Device) apply(s *signSession, step navigation.Step) (bool, error) {
	if d.model == navigation.Compact {
		switch step {
		case navigation.RightClick:
			s.cursor++
			return false, nil
		case navigation.BothClick:
			switch s.cursor {
			case s.screens:
				d.finish(s, d.approve(s))
				return true, nil
			case s.screens + 1:
				d.finish(s, signOutcome{err: &client.StatusError{Word: client.SWConditionNotSatisfied}})
				return true, nil
			default:
				return false, fmt.Errorf("combined confirm on review screen %d of %d", s.cursor, s.screens)
			}
		default:
			return false, fmt.Errorf("step %q is not valid on a compact device", step)
		}
	}

	switch step {
	case navigation.ReviewTap:
		if s.cursor >= s.screens {
			return false, errors.New("tap past the last review page")
		}
		s.cursor++
		return false, nil
	case navigation.ReviewConfirm:
		if s.cursor != s.screens {
			return false, fmt.Errorf("review confirm on page %d of %d", s.cursor, s.screens)
		}
		d.finish(s, d.approve(s))
		return true, nil
	case navigation.ReviewReject:
		if s.cursor != s.screens {
			return false, fmt.Errorf("review reject on page %d of %d", s.cursor, s.screens)
		}
		s.choice = true
		return false, nil
	case navigation.ChoiceConfirm:
		if !s.choice {
			return false, errors.New("choice confirm without a pending reject choice")
		}
		d.finish(s, signOutcome{err: &client.StatusError{Word: client.SWConditionNotSatisfied}})
		return true, nil
	default:
		return false, fmt.Errorf("step %q is not valid on a paged device", step)
	}
}

// approve signs the pending payload with the key at the session path and
// formats the [v|r|s] reply.
func (d *Device) approve(s *signSession) signOutcome {
	hash := crypto.Keccak256(s.payload)
	sig, err := crypto.Sign(hash, d.keyFor(s.path))
	if err != nil {
		return signOutcome{err: err}
	}
	v := byte(s.chainID*2 + 35 + uint64(sig[64]))
	reply := append([]byte{v}, sig[:64]...)
	return signOutcome{reply: reply}
}

// finish resolves the session unless something else (a concurrent Close)
// already did.
func (d *Device) finish(s *signSession, outcome signOutcome) {
	d.mu.Lock()
	owned := d.pending == s
	if owned {
		d.pending = nil
	}
	d.mu.Unlock()
	if owned {
		s.done <- outcome
	}
}
