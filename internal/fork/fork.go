// Package fork describes the networks that blockchain test fixtures are
// tagged with: which header shape each uses, whether blocks are sealed by
// proof-of-work, and the block reward paid to the coinbase.
package fork

import (
	"math/big"
	"sort"

	"github.com/pkg/errors"

	"github.com/roach88/ethconform/internal/types"
)

// ErrUnknownNetwork is returned by Lookup for names not in the table.
var ErrUnknownNetwork = errors.New("unknown network")

// Fork is one entry of the network table. Values returned by Lookup are
// copies; mutating them does not affect the table.
type Fork struct {
	// Name is the canonical network name used in fixtures.
	Name string
	// Format is the header layout of every block on this network.
	Format types.HeaderFormat
	// ProofOfStake reports whether blocks carry no proof-of-work seal.
	ProofOfStake bool
	// BlockReward is paid to the coinbase for each block, nil after the merge.
	BlockReward *big.Int
}

var ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), ether)
}

var table = []Fork{
	{Name: "Frontier", Format: types.FormatLegacy, BlockReward: eth(5)},
	{Name: "Homestead", Format: types.FormatLegacy, BlockReward: eth(5)},
	{Name: "TangerineWhistle", Format: types.FormatLegacy, BlockReward: eth(5)},
	{Name: "SpuriousDragon", Format: types.FormatLegacy, BlockReward: eth(5)},
	{Name: "Byzantium", Format: types.FormatLegacy, BlockReward: eth(3)},
	{Name: "Constantinople", Format: types.FormatLegacy, BlockReward: eth(2)},
	{Name: "ConstantinopleFix", Format: types.FormatLegacy, BlockReward: eth(2)},
	{Name: "Istanbul", Format: types.FormatLegacy, BlockReward: eth(2)},
	{Name: "MuirGlacier", Format: types.FormatLegacy, BlockReward: eth(2)},
	{Name: "Berlin", Format: types.FormatLegacy, BlockReward: eth(2)},
	{Name: "London", Format: types.FormatLondon, BlockReward: eth(2)},
	{Name: "ArrowGlacier", Format: types.FormatLondon, BlockReward: eth(2)},
	{Name: "GrayGlacier", Format: types.FormatLondon, BlockReward: eth(2)},
	{Name: "Paris", Format: types.FormatLondon, ProofOfStake: true},
	{Name: "Shanghai", Format: types.FormatShanghai, ProofOfStake: true},
}

// aliases maps the older fixture spellings onto canonical names.
var aliases = map[string]string{
	"EIP150": "TangerineWhistle",
	"EIP158": "SpuriousDragon",
	"Merge":  "Paris",
}

// Lookup returns the fork for a fixture network name. Matching is exact and
// case-sensitive.
func Lookup(network string) (Fork, error) {
	name := network
	if canonical, ok := aliases[network]; ok {
		name = canonical
	}
	for _, f := range table {
		if f.Name == name {
			return f.copy(), nil
		}
	}
	return Fork{}, errors.Wrapf(ErrUnknownNetwork, "%q", network)
}

// Names returns every accepted network name, aliases included, sorted.
func Names() []string {
	names := make([]string, 0, len(table)+len(aliases))
	for _, f := range table {
		names = append(names, f.Name)
	}
	for alias := range aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

func (f Fork) copy() Fork {
	if f.BlockReward != nil {
		f.BlockReward = new(big.Int).Set(f.BlockReward)
	}
	return f
}
