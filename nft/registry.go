package nft

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/bob-collective/app-ethereum/abis"
	"github.com/bob-collective/app-ethereum/navigation"
)

// Standard groups the fixtures for one NFT standard: the plugin the device
// must load and the collections and actions to exercise.
type Standard struct {
	Plugin      string
	Collections []Collection
	Actions     []Action
}

// Call arguments shared by every action.
var (
	argFrom = common.HexToAddress("0x1122334455667788990011223344556677889900")
	argTo   = common.HexToAddress("0x0099887766554433221100998877665544332211")
	argData = []byte("Some data")
)

// Fixed (token id, amount) pairs; single-token actions use the first.
var argNFTs = []struct{ ID, Amount int64 }{
	{1, 3},
	{5, 2},
	{7, 4},
}

// Standards builds the static fixture registry from the on-disk interface
// descriptions. Constructed once per run; immutable thereafter.
func Standards() ([]Standard, error) {
	erc721, err := parseABI(abis.ERC721)
	if err != nil {
		return nil, errors.Wrap(err, "parse erc721 abi")
	}
	erc1155, err := parseABI(abis.ERC1155)
	if err != nil {
		return nil, errors.Wrap(err, "parse erc1155 abi")
	}

	tokenID := big.NewInt(argNFTs[0].ID)
	amount := big.NewInt(argNFTs[0].Amount)
	var ids, amounts []*big.Int
	for _, nft := range argNFTs {
		ids = append(ids, big.NewInt(nft.ID))
		amounts = append(amounts, big.NewInt(nft.Amount))
	}

	return []Standard{
		{
			Plugin: "ERC721",
			Collections: []Collection{
				{common.HexToAddress("0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d"), "Bored Ape Yacht Club", 1, erc721},
				{common.HexToAddress("0x670fd103b1a08628e9557cd66b87ded841115190"), "y00ts", 137, erc721},
				{common.HexToAddress("0x2909cf13e458a576cdd9aab6bd6617051a92dacf"), "goerlirocks", 5, erc721},
			},
			Actions: []Action{
				{"safeTransferFrom", "safeTransferFrom", []interface{}{argFrom, argTo, tokenID, argData}, navigation.StepCounts{Compact: 7, Paged: 3}},
				{"safeTransferFrom", "safeTransferFrom0", []interface{}{argFrom, argTo, tokenID}, navigation.StepCounts{Compact: 7, Paged: 3}},
				{"transferFrom", "transferFrom", []interface{}{argFrom, argTo, tokenID}, navigation.StepCounts{Compact: 7, Paged: 3}},
				{"approve", "approve", []interface{}{argTo, tokenID}, navigation.StepCounts{Compact: 7, Paged: 3}},
				{"setApprovalForAll", "setApprovalForAll", []interface{}{argTo, false}, navigation.StepCounts{Compact: 6, Paged: 3}},
			},
		},
		{
			Plugin: "ERC1155",
			Collections: []Collection{
				{common.HexToAddress("0x495f947276749ce646f68ac8c248420045cb7b5e"), "OpenSea Shared Storefront", 1, erc1155},
				{common.HexToAddress("0x2953399124f0cbb46d2cbacd8a89cf0599974963"), "OpenSea Collections", 137, erc1155},
				{common.HexToAddress("0xf4910c763ed4e47a585e2d34baa9a4b611ae448c"), "OpenSea Collections", 5, erc1155},
			},
			Actions: []Action{
				{"safeTransferFrom", "safeTransferFrom", []interface{}{argFrom, argTo, tokenID, amount, argData}, navigation.StepCounts{Compact: 8, Paged: 4}},
				{"safeBatchTransferFrom", "safeBatchTransferFrom", []interface{}{argFrom, argTo, ids, amounts, argData}, navigation.StepCounts{Compact: 7, Paged: 3}},
				{"setApprovalForAll", "setApprovalForAll", []interface{}{argTo, false}, navigation.StepCounts{Compact: 6, Paged: 3}},
			},
		},
	}, nil
}

func parseABI(def []byte) (*abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(def))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
