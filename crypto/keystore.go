package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

const keystoreVersion = 1

type keystoreFile struct {
	Version int                 `json:"version"`
	Scheme  string              `json:"scheme"`
	Account string              `json:"account"`
	Crypto  keystore.CryptoJSON `json:"crypto"`
}

// SaveToKeystore encrypts the key seed with scrypt + AES-CTR (web3 v3 crypto
// section) and writes it to path. Parent directories are created with 0700.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	cryptoJSON, err := keystore.EncryptDataV3(key.Seed(), []byte(passphrase), keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(keystoreFile{
		Version: keystoreVersion,
		Scheme:  "ed25519",
		Account: key.Account().String(),
		Crypto:  cryptoJSON,
	}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFromKeystore decrypts a keystore file written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	if file.Version != keystoreVersion || file.Scheme != "ed25519" {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d scheme %q", file.Version, file.Scheme)
	}
	seed, err := keystore.DecryptDataV3(file.Crypto, passphrase)
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromSeed(seed)
}
