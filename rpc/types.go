package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"jidchain/core"
	"jidchain/core/state"
	"jidchain/crypto"
	"jidchain/explorer"
	"jidchain/native/jid"
)

// RecordResult is the wire form of a registration record.
type RecordResult struct {
	JID          string `json:"jid"`
	Owner        string `json:"owner"`
	OwnerHex     string `json:"ownerHex"`
	RegisteredAt uint64 `json:"registeredAt"`
	UpdatedAt    uint64 `json:"updatedAt"`
	Metadata     string `json:"metadata"`
	IsActive     bool   `json:"isActive"`
	ExpiresAt    uint64 `json:"expiresAt"`
}

func recordResult(name string, record *jid.Record) *RecordResult {
	return &RecordResult{
		JID:          name,
		Owner:        record.Owner.String(),
		OwnerHex:     record.Owner.Hex(),
		RegisteredAt: record.RegisteredAt,
		UpdatedAt:    record.UpdatedAt,
		Metadata:     "0x" + hex.EncodeToString(record.Metadata),
		IsActive:     record.IsActive,
		ExpiresAt:    record.ExpiresAt,
	}
}

// InfoResult is the wire form of the registry summary.
type InfoResult struct {
	ChainID            string `json:"chainId"`
	GenesisHash        string `json:"genesisHash"`
	Contract           string `json:"contract"`
	Owner              string `json:"owner"`
	Paused             bool   `json:"paused"`
	RegistrationFee    string `json:"registrationFee"`
	TotalRegistered    uint64 `json:"totalRegistered"`
	TotalFeesCollected string `json:"totalFeesCollected"`
	TotalFeesWithdrawn string `json:"totalFeesWithdrawn"`
	Holdings           string `json:"holdings"`
	VerificationMode   string `json:"verificationMode"`
	Height             uint64 `json:"height"`
}

// MessageResult returns the canonical text a wallet must sign.
type MessageResult struct {
	Message string `json:"message"`
	Digest  string `json:"digest"`
	Nonce   uint64 `json:"nonce"`
}

// HistoryResult is one explorer row.
type HistoryResult struct {
	EventID      string `json:"eventId"`
	Height       uint64 `json:"height"`
	Type         string `json:"type"`
	Label        string `json:"label"`
	JIDHash      string `json:"jidHash"`
	Actor        string `json:"actor,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	ReasonHash   string `json:"reasonHash,omitempty"`
	Timestamp    uint64 `json:"timestamp"`
}

func historyResult(entry explorer.HistoryEntry) HistoryResult {
	return HistoryResult{
		EventID:      entry.EventID,
		Height:       entry.Height,
		Type:         entry.Type,
		Label:        entry.Label,
		JIDHash:      entry.JIDHash,
		Actor:        entry.Actor,
		Counterparty: entry.Counterparty,
		ReasonHash:   entry.ReasonHash,
		Timestamp:    entry.Timestamp,
	}
}

// classifyError maps an error to an HTTP status, JSON-RPC code, message and
// optional data payload. Registry errors carry their stable kind name.
func classifyError(err error) (int, int, string, interface{}) {
	if code := jid.ErrorCode(err); code != "" {
		return http.StatusOK, codeRegistryError, err.Error(), map[string]string{"code": code}
	}
	var paramErr *paramError
	switch {
	case errors.As(err, &paramErr):
		return http.StatusBadRequest, codeInvalidParams, paramErr.Error(), nil
	case errors.Is(err, explorer.ErrUnknownIdentity):
		return http.StatusNotFound, codeNotFound, err.Error(), nil
	case errors.Is(err, errMissingCaller):
		return http.StatusUnauthorized, codeUnauthorized, err.Error(), nil
	case errors.Is(err, state.ErrInsufficientBalance):
		return http.StatusOK, codeRegistryError, err.Error(), map[string]string{"code": "InsufficientBalance"}
	case errors.Is(err, errFeatureDisabled), errors.Is(err, core.ErrNotBootstrapped), errors.Is(err, jid.ErrNotInitialised):
		return http.StatusServiceUnavailable, codeUnavailable, err.Error(), nil
	default:
		return http.StatusInternalServerError, codeServerError, "internal error", nil
	}
}

var errFeatureDisabled = errors.New("rpc: feature disabled")

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

func invalidParams(format string, args ...interface{}) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

func requireParams(params []json.RawMessage, min int) error {
	if len(params) < min {
		return invalidParams("expected at least %d params, got %d", min, len(params))
	}
	return nil
}

func paramString(params []json.RawMessage, idx int, name string) (string, error) {
	if idx >= len(params) {
		return "", invalidParams("%s required", name)
	}
	var out string
	if err := json.Unmarshal(params[idx], &out); err != nil {
		return "", invalidParams("%s must be a string", name)
	}
	return out, nil
}

func optionalString(params []json.RawMessage, idx int) (string, bool, error) {
	if idx >= len(params) || string(params[idx]) == "null" {
		return "", false, nil
	}
	var out string
	if err := json.Unmarshal(params[idx], &out); err != nil {
		return "", false, invalidParams("param %d must be a string", idx)
	}
	return out, true, nil
}

func paramBool(params []json.RawMessage, idx int, name string) (bool, error) {
	if idx >= len(params) {
		return false, invalidParams("%s required", name)
	}
	var out bool
	if err := json.Unmarshal(params[idx], &out); err != nil {
		return false, invalidParams("%s must be a boolean", name)
	}
	return out, nil
}

// paramUint accepts a JSON number or a decimal/0x string.
func paramUint(params []json.RawMessage, idx int, name string) (uint64, error) {
	if idx >= len(params) {
		return 0, invalidParams("%s required", name)
	}
	var num uint64
	if err := json.Unmarshal(params[idx], &num); err == nil {
		return num, nil
	}
	var raw string
	if err := json.Unmarshal(params[idx], &raw); err != nil {
		return 0, invalidParams("%s must be an unsigned integer", name)
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 64)
	if err != nil {
		return 0, invalidParams("%s must be an unsigned integer", name)
	}
	return parsed, nil
}

func optionalUint(params []json.RawMessage, idx int, name string) (uint64, error) {
	if idx >= len(params) || string(params[idx]) == "null" {
		return 0, nil
	}
	return paramUint(params, idx, name)
}

func paramAccount(params []json.RawMessage, idx int, name string) (crypto.AccountID, error) {
	raw, err := paramString(params, idx, name)
	if err != nil {
		return crypto.AccountID{}, err
	}
	account, err := crypto.ParseAccount(raw)
	if err != nil {
		return crypto.AccountID{}, invalidParams("%s: %v", name, err)
	}
	return account, nil
}

func paramHex(params []json.RawMessage, idx int, name string) ([]byte, error) {
	raw, err := paramString(params, idx, name)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, invalidParams("%s must be hex encoded", name)
	}
	return decoded, nil
}

// paramAmount accepts a decimal string or JSON number in base units.
func paramAmount(params []json.RawMessage, idx int, name string) (*uint256.Int, error) {
	if idx >= len(params) {
		return nil, invalidParams("%s required", name)
	}
	raw := strings.Trim(strings.TrimSpace(string(params[idx])), `"`)
	if raw == "" {
		return nil, invalidParams("%s required", name)
	}
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, invalidParams("%s must be a decimal amount", name)
	}
	return amount, nil
}

func optionalAmount(params []json.RawMessage, idx int, name string) (*uint256.Int, bool, error) {
	if idx >= len(params) || string(params[idx]) == "null" {
		return nil, false, nil
	}
	amount, err := paramAmount(params, idx, name)
	if err != nil {
		return nil, false, err
	}
	return amount, true, nil
}
