package wallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

const pathRoot = "m"

// AccountRootPath returns m/purpose'/coinType'/0', the account level node of
// a script type on the given network.
func AccountRootPath(network models.Network, scriptType models.ScriptType) ([]string, error) {
	purpose, err := scriptType.Purpose()
	if err != nil {
		return nil, err
	}
	return []string{
		pathRoot,
		hardened(purpose),
		hardened(network.CoinType()),
		hardened(0),
	}, nil
}

// AccountPath returns m/purpose'/coinType'/0'/0/index.
func AccountPath(network models.Network, scriptType models.ScriptType, index uint32) ([]string, error) {
	root, err := AccountRootPath(network, scriptType)
	if err != nil {
		return nil, err
	}
	return append(root, "0", strconv.FormatUint(uint64(index), 10)), nil
}

// ParsePath converts a path such as ["m", "84'", "0'", "0'", "0", "3"] into
// child indices with the hardened bit applied. The leading "m" is required.
func ParsePath(path []string) ([]uint32, error) {
	if len(path) == 0 || path[0] != pathRoot {
		return nil, fmt.Errorf("%w: must start with %q", ErrInvalidPath, pathRoot)
	}

	indices := make([]uint32, 0, len(path)-1)
	for _, component := range path[1:] {
		idx, err := parseComponent(component)
		if err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// FormatPath is the inverse of ParsePath.
func FormatPath(indices []uint32) []string {
	path := make([]string, 0, len(indices)+1)
	path = append(path, pathRoot)
	for _, idx := range indices {
		if idx >= hdkeychain.HardenedKeyStart {
			path = append(path, hardened(idx-hdkeychain.HardenedKeyStart))
			continue
		}
		path = append(path, strconv.FormatUint(uint64(idx), 10))
	}
	return path
}

func parseComponent(component string) (uint32, error) {
	trimmed := strings.TrimRight(component, "'h")
	isHardened := len(trimmed) != len(component)
	if len(component)-len(trimmed) > 1 {
		return 0, fmt.Errorf("%w: component %q", ErrInvalidPath, component)
	}

	n, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil || n >= hdkeychain.HardenedKeyStart {
		return 0, fmt.Errorf("%w: component %q", ErrInvalidPath, component)
	}

	idx := uint32(n)
	if isHardened {
		idx += hdkeychain.HardenedKeyStart
	}
	return idx, nil
}

func hardened(n uint32) string {
	return strconv.FormatUint(uint64(n), 10) + "'"
}
