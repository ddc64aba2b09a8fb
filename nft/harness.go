package nft

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"

	"github.com/bob-collective/app-ethereum/client"
	"github.com/bob-collective/app-ethereum/navigation"
)

// Fixed session-wide signing request fields. Scenarios vary only the
// recipient, chain id and call data.
const (
	sessionNonce    = 21
	sessionGasLimit = 21000
)

// 13 gwei
var sessionGasPrice = new(big.Int).Mul(big.NewInt(13), big.NewInt(params.GWei))

// Runner drives conformance scenarios against one device session. It owns
// the device address cache for the run: the address is queried once on first
// need and assumed stable for the session.
type Runner struct {
	app   *client.EthApp
	nav   navigation.Navigator
	model navigation.DeviceModel
	path  accounts.DerivationPath

	deviceAddr    common.Address
	deviceAddrSet bool

	log log.Logger
}

// NewRunner binds a device client, a navigator and the device family under
// test. Signing uses the app's default derivation path.
func NewRunner(app *client.EthApp, nav navigation.Navigator, model navigation.DeviceModel) *Runner {
	return &Runner{
		app:   app,
		nav:   nav,
		model: model,
		path:  accounts.DefaultBaseDerivationPath,
		log:   log.New("module", "nft-harness"),
	}
}

// UsePath switches signing to the given derivation path. The cached device
// address belongs to the previous path, so it is dropped.
func (r *Runner) UsePath(path accounts.DerivationPath) {
	r.path = path
	r.deviceAddr = common.Address{}
	r.deviceAddrSet = false
}

// DeviceAddress returns the device's public address at the session path,
// querying it without on-screen display on first use. Failure to resolve it
// is a fatal setup error for the whole run.
func (r *Runner) DeviceAddress() (common.Address, error) {
	if r.deviceAddrSet {
		return r.deviceAddr, nil
	}
	_, addr, err := r.app.GetPublicAddress(r.path, false)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "query device address")
	}
	r.deviceAddr = addr
	r.deviceAddrSet = true
	r.log.Debug("resolved device address", "address", addr)
	return addr, nil
}

type signResult struct {
	sig *client.Signature
	err error
}

// RunScenario executes one end-to-end exercise: plugin registration,
// collection metadata, signing request, navigation, and outcome validation.
// Accept scenarios verify that the recovered signer equals the device
// address; reject scenarios require exactly the condition-not-satisfied
// status and no signature. Every other failure is surfaced as-is.
func (r *Runner) RunScenario(sc Scenario) error {
	deviceAddr, err := r.DeviceAddress()
	if err != nil {
		return err
	}

	data, err := sc.Action.Encode(sc.Collection)
	if err != nil {
		return err
	}
	selector, err := Selector(data)
	if err != nil {
		return err
	}

	// Both metadata primitives must land before the signing request; a
	// failure in either is a setup error, never a rejection outcome.
	if err := r.app.SetPlugin(sc.Plugin, sc.Collection.Address, selector, sc.Collection.ChainID); err != nil {
		return errors.Wrap(err, "register plugin")
	}
	if err := r.app.ProvideNFTInformation(sc.Collection.Name, sc.Collection.Address, sc.Collection.ChainID); err != nil {
		return errors.Wrap(err, "provide collection metadata")
	}

	tx := &client.TxParams{
		Nonce:    sessionNonce,
		GasPrice: sessionGasPrice,
		Gas:      sessionGasLimit,
		To:       sc.Collection.Address,
		Value:    new(big.Int),
		Data:     data,
		ChainID:  new(big.Int).SetUint64(sc.Collection.ChainID),
	}
	plan := navigation.Plan(r.model, sc.Action.Steps, sc.Collection.ChainID, sc.Reject)
	name := sc.Name()
	r.log.Info("running scenario", "name", name, "model", r.model, "steps", len(plan))

	// The signing call blocks until the on-screen review resolves, so it is
	// pended while the navigator, a separate collaborator channel, drives
	// the screen. The device transport itself still sees one call at a time.
	done := make(chan signResult, 1)
	go func() {
		sig, err := r.app.SignTransaction(r.path, tx)
		done <- signResult{sig: sig, err: err}
	}()
	if err := r.nav.NavigateAndCompare(name, plan); err != nil {
		return errors.Wrap(err, "drive navigation")
	}
	res := <-done

	if sc.Reject {
		if res.err == nil {
			return errors.New("device produced a signature for a rejected transaction")
		}
		if !client.IsStatus(res.err, client.SWConditionNotSatisfied) {
			return errors.Wrap(res.err, "unexpected status on reject")
		}
		return nil
	}

	if res.err != nil {
		return res.err
	}
	recovered, err := RecoverSigner(tx, res.sig)
	if err != nil {
		return errors.Wrap(err, "recover signer")
	}
	if recovered != deviceAddr {
		return errors.Errorf("recovered signer %s does not match device address %s", recovered, deviceAddr)
	}
	return nil
}
