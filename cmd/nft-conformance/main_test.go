package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/stretchr/testify/require"

	"github.com/bob-collective/app-ethereum/navigation"
	"github.com/bob-collective/app-ethereum/nft"
)

func TestParseModel(t *testing.T) {
	model, err := parseModel("compact")
	require.NoError(t, err)
	require.Equal(t, navigation.Compact, model)

	model, err = parseModel("paged")
	require.NoError(t, err)
	require.Equal(t, navigation.Paged, model)

	_, err = parseModel("stax")
	require.Error(t, err)
}

func TestSelectScenarios(t *testing.T) {
	scenarios, err := nft.Scenarios()
	require.NoError(t, err)

	require.Equal(t, scenarios, selectScenarios(scenarios, "", false))

	for _, sc := range selectScenarios(scenarios, "", true) {
		require.True(t, sc.Reject, "scenario %s", sc.Name())
	}
	require.Len(t, selectScenarios(scenarios, "", true), 2)

	named := selectScenarios(scenarios, "erc1155_safebatchtransferfrom", false)
	require.Len(t, named, 3)
	for _, sc := range named {
		require.Contains(t, sc.Name(), "erc1155_safebatchtransferfrom")
	}

	require.Empty(t, selectScenarios(scenarios, "no such scenario", false))
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"model", "filter", "path", "reject", "verbose"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "flag --%s", name)
	}

	// The default path must parse to the app's standard account.
	path, err := accounts.ParseDerivationPath(cmd.Flags().Lookup("path").DefValue)
	require.NoError(t, err)
	require.Equal(t, accounts.DefaultBaseDerivationPath, path)
}
