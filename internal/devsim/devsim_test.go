package devsim_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/bob-collective/app-ethereum/client"
	"github.com/bob-collective/app-ethereum/internal/devsim"
	"github.com/bob-collective/app-ethereum/navigation"
)

var approveCalldata = append([]byte{0x09, 0x5e, 0xa7, 0xb3}, make([]byte, 64)...)

func TestRejectsUnknownClassAndInstruction(t *testing.T) {
	sim := devsim.New(navigation.Compact, []byte("seed"))

	_, err := sim.Exchange([]byte{0x80, 0x02, 0x00, 0x00, 0x00})
	require.True(t, client.IsStatus(err, client.SWClaNotSupported), "got %v", err)

	_, err = sim.Exchange([]byte{0xE0, 0xFF, 0x00, 0x00, 0x00})
	require.True(t, client.IsStatus(err, client.SWInsNotSupported), "got %v", err)
}

func TestConfirmOnWrongScreenFailsTheSession(t *testing.T) {
	sim := devsim.New(navigation.Compact, []byte("seed"))
	app := client.New(sim)
	contract := common.HexToAddress("0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d")

	require.NoError(t, app.SetPlugin("ERC721", contract, [4]byte{0x09, 0x5e, 0xa7, 0xb3}, 1))
	require.NoError(t, app.ProvideNFTInformation("Bored Ape Yacht Club", contract, 1))

	tx := &client.TxParams{
		Nonce:    21,
		GasPrice: big.NewInt(13_000_000_000),
		Gas:      21000,
		To:       contract,
		Value:    new(big.Int),
		Data:     approveCalldata,
		ChainID:  big.NewInt(1),
	}
	done := make(chan error, 1)
	go func() {
		_, err := app.SignTransaction(accounts.DefaultBaseDerivationPath, tx)
		done <- err
	}()

	// Confirming on the first review screen is a screen mismatch: the
	// navigator fails and the pending request is aborted.
	err := sim.NavigateAndCompare("erc721_approve_1", []navigation.Step{navigation.BothClick})
	require.Error(t, err)
	require.Error(t, <-done)
}

func TestPlanWithoutTerminalActionAborts(t *testing.T) {
	sim := devsim.New(navigation.Paged, []byte("seed"))
	app := client.New(sim)
	contract := common.HexToAddress("0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d")

	require.NoError(t, app.SetPlugin("ERC721", contract, [4]byte{0x09, 0x5e, 0xa7, 0xb3}, 1))
	require.NoError(t, app.ProvideNFTInformation("Bored Ape Yacht Club", contract, 1))

	tx := &client.TxParams{
		Nonce:    21,
		GasPrice: big.NewInt(13_000_000_000),
		Gas:      21000,
		To:       contract,
		Value:    new(big.Int),
		Data:     approveCalldata,
		ChainID:  big.NewInt(1),
	}
	done := make(chan error, 1)
	go func() {
		_, err := app.SignTransaction(accounts.DefaultBaseDerivationPath, tx)
		done <- err
	}()

	err := sim.NavigateAndCompare("erc721_approve_1", []navigation.Step{navigation.ReviewTap})
	require.Error(t, err)
	require.Error(t, <-done)
}

// The navigator may start before the signing request has reached the device;
// it must wait for the review to open rather than fail on the idle screen.
func TestNavigatorWaitsForSigningSession(t *testing.T) {
	sim := devsim.New(navigation.Compact, []byte("seed"))
	app := client.New(sim)
	contract := common.HexToAddress("0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d")

	require.NoError(t, app.SetPlugin("ERC721", contract, [4]byte{0x09, 0x5e, 0xa7, 0xb3}, 1))
	require.NoError(t, app.ProvideNFTInformation("Bored Ape Yacht Club", contract, 1))

	tx := &client.TxParams{
		Nonce:    21,
		GasPrice: big.NewInt(13_000_000_000),
		Gas:      21000,
		To:       contract,
		Value:    new(big.Int),
		Data:     approveCalldata,
		ChainID:  big.NewInt(1),
	}

	// Start navigation first so the request is still in flight when the
	// navigator looks at the screen.
	navErr := make(chan error, 1)
	plan := navigation.Plan(navigation.Compact, navigation.StepCounts{Compact: 7, Paged: 3}, 1, false)
	go func() {
		navErr <- sim.NavigateAndCompare("erc721_approve_1", plan)
	}()

	sig, err := app.SignTransaction(accounts.DefaultBaseDerivationPath, tx)
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.NoError(t, <-navErr)
	require.Equal(t, []string{"erc721_approve_1"}, sim.Snapshots())
}

// A signing request refused before any review opens must unblock a waiting
// navigator with an error, not leave it parked on the idle screen.
func TestNavigateAfterRefusedSigningRequest(t *testing.T) {
	sim := devsim.New(navigation.Compact, []byte("seed"))
	app := client.New(sim)

	tx := &client.TxParams{
		Nonce:    21,
		GasPrice: big.NewInt(13_000_000_000),
		Gas:      21000,
		To:       common.HexToAddress("0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d"),
		Value:    new(big.Int),
		Data:     approveCalldata, // no plugin registered for this selector
		ChainID:  big.NewInt(1),
	}
	_, err := app.SignTransaction(accounts.DefaultBaseDerivationPath, tx)
	require.True(t, client.IsStatus(err, client.SWIncorrectData), "got %v", err)

	err = sim.NavigateAndCompare("erc721_approve_1", []navigation.Step{navigation.BothClick})
	require.Error(t, err)
}

func TestCloseUnblocksWaitingNavigator(t *testing.T) {
	sim := devsim.New(navigation.Compact, []byte("seed"))

	navErr := make(chan error, 1)
	go func() {
		navErr <- sim.NavigateAndCompare("nothing", []navigation.Step{navigation.BothClick})
	}()
	require.NoError(t, sim.Close())
	require.Error(t, <-navErr)
	require.Empty(t, sim.Snapshots())
}

func TestCloseAbortsPendingSession(t *testing.T) {
	sim := devsim.New(navigation.Compact, []byte("seed"))
	app := client.New(sim)
	contract := common.HexToAddress("0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d")

	require.NoError(t, app.SetPlugin("ERC721", contract, [4]byte{0x09, 0x5e, 0xa7, 0xb3}, 1))
	require.NoError(t, app.ProvideNFTInformation("Bored Ape Yacht Club", contract, 1))

	tx := &client.TxParams{
		Nonce:    21,
		GasPrice: big.NewInt(13_000_000_000),
		Gas:      21000,
		To:       contract,
		Value:    new(big.Int),
		Data:     approveCalldata,
		ChainID:  big.NewInt(1),
	}
	done := make(chan error, 1)
	go func() {
		_, err := app.SignTransaction(accounts.DefaultBaseDerivationPath, tx)
		done <- err
	}()

	// Whether the request is already pending review or still arriving,
	// closing the device must resolve it with an error.
	require.NoError(t, sim.Close())
	require.Error(t, <-done)
}
