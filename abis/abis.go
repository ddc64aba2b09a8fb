// Package abis carries the on-disk interface descriptions of the NFT
// standards exercised by the conformance harness.
package abis

import _ "embed"

//go:embed erc721.json
var ERC721 []byte

//go:embed erc1155.json
var ERC1155 []byte
