package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySpec names the environment variable holding the key for one wallet.
type KeySpec struct {
	Address common.Address
	KeyEnv  string
}

// KeyRing holds the signing keys of every configured wallet. Keys never leave it.
type KeyRing struct {
	keys map[common.Address]*ecdsa.PrivateKey
}

// LoadKeyRing reads each key through lookup (os.LookupEnv in production) and
// checks it derives the configured address. Error messages never contain key material.
func LoadKeyRing(specs []KeySpec, lookup func(string) (string, bool)) (*KeyRing, error) {
	kr := &KeyRing{keys: make(map[common.Address]*ecdsa.PrivateKey, len(specs))}
	for _, s := range specs {
		if _, dup := kr.keys[s.Address]; dup {
			continue // same wallet configured for more than one role
		}
		raw, ok := lookup(s.KeyEnv)
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("chain.LoadKeyRing: %s: env %s is not set", s.Address.Hex(), s.KeyEnv)
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
		if err != nil {
			return nil, fmt.Errorf("chain.LoadKeyRing: %s: env %s does not hold a valid private key", s.Address.Hex(), s.KeyEnv)
		}
		if derived := crypto.PubkeyToAddress(key.PublicKey); derived != s.Address {
			return nil, fmt.Errorf("chain.LoadKeyRing: key in %s belongs to %s, not %s", s.KeyEnv, derived.Hex(), s.Address.Hex())
		}
		kr.keys[s.Address] = key
	}
	return kr, nil
}

// Len returns the number of loaded keys.
func (kr *KeyRing) Len() int { return len(kr.keys) }

func (kr *KeyRing) key(addr common.Address) (*ecdsa.PrivateKey, bool) {
	if kr == nil {
		return nil, false
	}
	k, ok := kr.keys[addr]
	return k, ok
}
