// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"jidchain/core/identity"
	"jidchain/crypto"
)

// GenesisSpec describes the initial registry deployment. Its fingerprint is
// the genesis hash bound into every signed message.
type GenesisSpec struct {
	GenesisTime     string            `json:"genesisTime"`
	ChainLabel      string            `json:"chainLabel"`
	Admin           string            `json:"admin"`
	Contract        string            `json:"contract,omitempty"`
	RegistrationFee string            `json:"registrationFee,omitempty"`
	Alloc           map[string]string `json:"alloc"` // account -> amount
	Blacklist       []string          `json:"blacklist,omitempty"`

	genesisTimestamp time.Time
	admin            crypto.AccountID
	contract         crypto.AccountID
	fee              *uint256.Int
	alloc            []Allocation
	blacklist        []string
}

// Allocation is a validated opening balance.
type Allocation struct {
	Account crypto.AccountID
	Amount  *uint256.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time   { return s.genesisTimestamp }
func (s *GenesisSpec) AdminAccount() crypto.AccountID { return s.admin }

// ContractAccount returns the configured fee account, or the zero account
// when it should be derived.
func (s *GenesisSpec) ContractAccount() crypto.AccountID { return s.contract }

// Fee returns the opening registration fee, or nil to keep the default.
func (s *GenesisSpec) Fee() *uint256.Int {
	if s.fee == nil {
		return nil
	}
	return new(uint256.Int).Set(s.fee)
}

// Allocations returns opening balances ordered by account.
func (s *GenesisSpec) Allocations() []Allocation {
	out := make([]Allocation, len(s.alloc))
	copy(out, s.alloc)
	return out
}

// BlacklistedJIDs returns the normalized identifiers blocked at genesis.
func (s *GenesisSpec) BlacklistedJIDs() []string {
	return append([]string(nil), s.blacklist...)
}

// Fingerprint derives the genesis hash from the canonical encoding of the
// spec. Map keys are emitted sorted, so the digest is stable.
func (s *GenesisSpec) Fingerprint() ([32]byte, error) {
	canonical, err := json.Marshal(struct {
		GenesisTime     string            `json:"genesisTime"`
		ChainLabel      string            `json:"chainLabel"`
		Admin           string            `json:"admin"`
		Contract        string            `json:"contract"`
		RegistrationFee string            `json:"registrationFee"`
		Alloc           map[string]string `json:"alloc"`
		Blacklist       []string          `json:"blacklist"`
	}{
		GenesisTime:     s.genesisTimestamp.UTC().Format(time.RFC3339Nano),
		ChainLabel:      s.ChainLabel,
		Admin:           s.admin.Hex(),
		Contract:        s.contract.Hex(),
		RegistrationFee: feeString(s.fee),
		Alloc:           canonicalAlloc(s.alloc),
		Blacklist:       s.blacklist,
	})
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Blake2b256([]byte("jid/genesis-spec"), canonical), nil
}

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if strings.TrimSpace(s.ChainLabel) == "" {
		return fmt.Errorf("chainLabel must be provided")
	}
	if strings.TrimSpace(s.Admin) == "" {
		return fmt.Errorf("admin must be provided")
	}
	if s.admin, err = crypto.ParseAccount(s.Admin); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if strings.TrimSpace(s.Contract) != "" {
		if s.contract, err = crypto.ParseAccount(s.Contract); err != nil {
			return fmt.Errorf("contract: %w", err)
		}
	}
	if strings.TrimSpace(s.RegistrationFee) != "" {
		fee, err := parseAmountString(s.RegistrationFee)
		if err != nil {
			return fmt.Errorf("registrationFee: %w", err)
		}
		if fee.IsZero() {
			return fmt.Errorf("registrationFee must be positive")
		}
		s.fee = fee
	}

	s.alloc = s.alloc[:0]
	seen := make(map[crypto.AccountID]struct{}, len(s.Alloc))
	for rawAccount, rawAmount := range s.Alloc {
		account, err := crypto.ParseAccount(rawAccount)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", rawAccount, err)
		}
		if _, dup := seen[account]; dup {
			return fmt.Errorf("alloc %q: duplicate account", rawAccount)
		}
		seen[account] = struct{}{}
		amount, err := parseAmountString(rawAmount)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", rawAccount, err)
		}
		s.alloc = append(s.alloc, Allocation{Account: account, Amount: amount})
	}
	sort.Slice(s.alloc, func(i, j int) bool {
		return bytes.Compare(s.alloc[i].Account[:], s.alloc[j].Account[:]) < 0
	})

	s.blacklist = s.blacklist[:0]
	unique := make(map[string]struct{}, len(s.Blacklist))
	for _, raw := range s.Blacklist {
		normalized, err := identity.NormalizeJID(raw)
		if err != nil {
			return fmt.Errorf("blacklist %q: %w", raw, err)
		}
		if _, dup := unique[normalized]; dup {
			continue
		}
		unique[normalized] = struct{}{}
		s.blacklist = append(s.blacklist, normalized)
	}
	sort.Strings(s.blacklist)
	return nil
}

func canonicalAlloc(alloc []Allocation) map[string]string {
	out := make(map[string]string, len(alloc))
	for _, entry := range alloc {
		out[entry.Account.Hex()] = entry.Amount.Dec()
	}
	return out
}

func feeString(fee *uint256.Int) string {
	if fee == nil {
		return ""
	}
	return fee.Dec()
}

func parseAmountString(value string) (*uint256.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
