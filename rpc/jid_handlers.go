package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/holiman/uint256"

	"jidchain/core/identity"
	"jidchain/crypto"
	"jidchain/native/jid"
)

func (s *Server) registerMethods() map[string]methodHandler {
	methods := map[string]methodHandler{
		"jid_register":           s.handleRegister,
		"jid_updateMetadata":     s.handleUpdateMetadata,
		"jid_transfer":           s.handleTransfer,
		"jid_revoke":             s.handleRevoke,
		"jid_resolve":            s.handleResolve,
		"jid_resolveByAccount":   s.handleResolveByAccount,
		"jid_getRecord":          s.handleGetRecord,
		"jid_exists":             s.handleExists,
		"jid_getNonce":           s.handleGetNonce,
		"jid_buildMessage":       s.handleBuildMessage,
		"jid_isBlacklisted":      s.handleIsBlacklisted,
		"jid_isPaused":           s.handleIsPaused,
		"jid_totalRegistered":    s.handleTotalRegistered,
		"jid_registrationFee":    s.handleRegistrationFee,
		"jid_totalFeesCollected": s.handleFeesCollected,
		"jid_totalFeesWithdrawn": s.handleFeesWithdrawn,
		"jid_chainId":            s.handleChainID,
		"jid_genesisHash":        s.handleGenesisHash,
		"jid_contractAddress":    s.handleContractAddress,
		"jid_owner":              s.handleOwner,
		"jid_info":               s.handleInfo,
		"account_balance":        s.handleBalance,
		"dev_faucet":             s.handleFaucet,
		"explorer_history":       s.handleHistory,
		"explorer_snapshot":      s.handleSnapshot,
		"explorer_stats":         s.handleStats,
		"events_since":           s.handleEventsSince,
	}
	for name, handler := range s.adminMethods() {
		methods[name] = handler
	}
	return methods
}

// handleRegister params: [jid, proofHex, nonce, expiresAt?, value?]. The
// attached value defaults to the current registration fee.
func (s *Server) handleRegister(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	account, err := caller.require()
	if err != nil {
		return nil, err
	}
	if err := requireParams(params, 3); err != nil {
		return nil, err
	}
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	proof, err := paramHex(params, 1, "proof")
	if err != nil {
		return nil, err
	}
	nonce, err := paramUint(params, 2, "nonce")
	if err != nil {
		return nil, err
	}
	expiresAt, err := optionalUint(params, 3, "expiresAt")
	if err != nil {
		return nil, err
	}
	value, ok, err := optionalAmount(params, 4, "value")
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.proc.View(func(engine *jid.Engine, _ uint64) error {
			fee, err := engine.RegistrationFee()
			value = fee
			return err
		}); err != nil {
			return nil, err
		}
	}
	err = s.proc.Execute(ctx, "register", account, value, func(engine *jid.Engine, call jid.Call) error {
		return engine.Register(call, name, proof, nonce, expiresAt)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"jid":     strings.ToLower(name),
		"jidHash": hashHex(name),
		"paid":    value.Dec(),
		"height":  s.proc.Height(),
	}, nil
}

// handleUpdateMetadata params: [jid, metadataHex].
func (s *Server) handleUpdateMetadata(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	account, err := caller.require()
	if err != nil {
		return nil, err
	}
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	metadata, err := paramHex(params, 1, "metadata")
	if err != nil {
		return nil, err
	}
	err = s.proc.Execute(ctx, "update_metadata", account, nil, func(engine *jid.Engine, call jid.Call) error {
		return engine.UpdateMetadata(call, name, metadata)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "height": s.proc.Height()}, nil
}

// handleTransfer params: [jid, newOwner, proofHex, nonce]. The current owner
// signs the transfer message.
func (s *Server) handleTransfer(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	account, err := caller.require()
	if err != nil {
		return nil, err
	}
	if err := requireParams(params, 4); err != nil {
		return nil, err
	}
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	newOwner, err := paramAccount(params, 1, "newOwner")
	if err != nil {
		return nil, err
	}
	proof, err := paramHex(params, 2, "proof")
	if err != nil {
		return nil, err
	}
	nonce, err := paramUint(params, 3, "nonce")
	if err != nil {
		return nil, err
	}
	err = s.proc.Execute(ctx, "transfer", account, nil, func(engine *jid.Engine, call jid.Call) error {
		return engine.Transfer(call, name, newOwner, proof, nonce)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "newOwner": newOwner.String(), "height": s.proc.Height()}, nil
}

// handleRevoke params: [jid].
func (s *Server) handleRevoke(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	account, err := caller.require()
	if err != nil {
		return nil, err
	}
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	err = s.proc.Execute(ctx, "revoke", account, nil, func(engine *jid.Engine, call jid.Call) error {
		return engine.Revoke(call, name)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "height": s.proc.Height()}, nil
}

// handleResolve fails with JIDNotFound, JIDRevoked or JIDExpired when the
// identifier does not resolve.
func (s *Server) handleResolve(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	var result *RecordResult
	err = s.proc.View(func(engine *jid.Engine, now uint64) error {
		record, err := engine.Resolve(name, now)
		if err != nil {
			return err
		}
		result = recordResult(strings.ToLower(name), record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) handleResolveByAccount(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	account, err := paramAccount(params, 0, "account")
	if err != nil {
		return nil, err
	}
	var result *string
	err = s.proc.View(func(engine *jid.Engine, now uint64) error {
		name, ok, err := engine.ResolveByAccount(account, now)
		if err != nil || !ok {
			return err
		}
		result = &name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// handleGetRecord returns the stored record regardless of status.
func (s *Server) handleGetRecord(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	var result *RecordResult
	err = s.proc.View(func(engine *jid.Engine, _ uint64) error {
		record, ok, err := engine.Record(name)
		if err != nil {
			return err
		}
		if !ok {
			return jid.ErrJIDNotFound
		}
		result = recordResult(strings.ToLower(name), record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) handleExists(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	var exists bool
	err = s.proc.View(func(engine *jid.Engine, _ uint64) error {
		exists, err = engine.Exists(name)
		return err
	})
	return exists, err
}

// handleGetNonce params: [account, action?]. Action defaults to register.
func (s *Server) handleGetNonce(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	account, err := paramAccount(params, 0, "account")
	if err != nil {
		return nil, err
	}
	action, err := optionalAction(params, 1)
	if err != nil {
		return nil, err
	}
	var nonce uint64
	err = s.proc.View(func(engine *jid.Engine, _ uint64) error {
		nonce, err = engine.NonceForAction(account, action)
		return err
	})
	return nonce, err
}

// handleBuildMessage params: [action, jid, signer, newOwner?]. It returns the
// canonical message for the signer's current nonce of that action. Transfers
// require newOwner.
func (s *Server) handleBuildMessage(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	if err := requireParams(params, 3); err != nil {
		return nil, err
	}
	action, err := optionalAction(params, 0)
	if err != nil {
		return nil, err
	}
	name, err := paramString(params, 1, "jid")
	if err != nil {
		return nil, err
	}
	signer, err := paramAccount(params, 2, "signer")
	if err != nil {
		return nil, err
	}
	name, err = identity.NormalizeJID(name)
	if err != nil {
		return nil, err
	}
	var newOwner crypto.AccountID
	if action == jid.ActionTransfer {
		if newOwner, err = paramAccount(params, 3, "newOwner"); err != nil {
			return nil, err
		}
	}
	var result *MessageResult
	err = s.proc.View(func(engine *jid.Engine, _ uint64) error {
		genesis, err := engine.GenesisHash()
		if err != nil {
			return err
		}
		contract, err := engine.ContractAddress()
		if err != nil {
			return err
		}
		nonce, err := engine.NonceForAction(signer, action)
		if err != nil {
			return err
		}
		var message string
		switch action {
		case jid.ActionTransfer:
			message = jid.TransferMessage(genesis, name, newOwner, nonce, contract)
		default:
			message = jid.RegisterMessage(genesis, name, nonce, contract)
		}
		digest := jid.MessageDigest(message)
		result = &MessageResult{Message: message, Digest: "0x" + hex.EncodeToString(digest[:]), Nonce: nonce}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) handleIsBlacklisted(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	var listed bool
	err = s.proc.View(func(engine *jid.Engine, _ uint64) error {
		listed, err = engine.IsBlacklisted(name)
		return err
	})
	return listed, err
}

func (s *Server) handleIsPaused(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	var paused bool
	err := s.proc.View(func(engine *jid.Engine, _ uint64) (err error) {
		paused, err = engine.IsPaused()
		return err
	})
	return paused, err
}

func (s *Server) handleTotalRegistered(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	var total uint64
	err := s.proc.View(func(engine *jid.Engine, _ uint64) (err error) {
		total, err = engine.TotalRegistered()
		return err
	})
	return total, err
}

func (s *Server) handleRegistrationFee(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	return s.amountView(func(engine *jid.Engine) (*uint256.Int, error) { return engine.RegistrationFee() })
}

func (s *Server) handleFeesCollected(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	return s.amountView(func(engine *jid.Engine) (*uint256.Int, error) { return engine.TotalFeesCollected() })
}

func (s *Server) handleFeesWithdrawn(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	return s.amountView(func(engine *jid.Engine) (*uint256.Int, error) { return engine.TotalFeesWithdrawn() })
}

func (s *Server) amountView(read func(*jid.Engine) (*uint256.Int, error)) (interface{}, error) {
	var amount *uint256.Int
	err := s.proc.View(func(engine *jid.Engine, _ uint64) (err error) {
		amount, err = read(engine)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount.Dec(), nil
}

func (s *Server) handleChainID(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	var label string
	err := s.proc.View(func(engine *jid.Engine, _ uint64) (err error) {
		label, err = engine.ChainID()
		return err
	})
	return label, err
}

func (s *Server) handleGenesisHash(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	var genesis [32]byte
	err := s.proc.View(func(engine *jid.Engine, _ uint64) (err error) {
		genesis, err = engine.GenesisHash()
		return err
	})
	if err != nil {
		return nil, err
	}
	return "0x" + hex.EncodeToString(genesis[:]), nil
}

func (s *Server) handleContractAddress(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	return s.accountView(func(engine *jid.Engine) (crypto.AccountID, error) { return engine.ContractAddress() })
}

func (s *Server) handleOwner(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	return s.accountView(func(engine *jid.Engine) (crypto.AccountID, error) { return engine.Owner() })
}

func (s *Server) accountView(read func(*jid.Engine) (crypto.AccountID, error)) (interface{}, error) {
	var account crypto.AccountID
	err := s.proc.View(func(engine *jid.Engine, _ uint64) (err error) {
		account, err = read(engine)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account.String(), nil
}

func (s *Server) handleInfo(context.Context, callerInfo, []json.RawMessage) (interface{}, error) {
	var result *InfoResult
	err := s.proc.View(func(engine *jid.Engine, _ uint64) error {
		info, err := engine.Info()
		if err != nil {
			return err
		}
		result = &InfoResult{
			ChainID:            info.ChainLabel,
			GenesisHash:        "0x" + hex.EncodeToString(info.GenesisHash[:]),
			Contract:           info.Contract.String(),
			Owner:              info.Owner.String(),
			Paused:             info.Paused,
			RegistrationFee:    info.RegistrationFee.Dec(),
			TotalRegistered:    info.TotalRegistered,
			TotalFeesCollected: info.TotalFeesCollected.Dec(),
			TotalFeesWithdrawn: info.TotalFeesWithdrawn.Dec(),
			Holdings:           info.Holdings.Dec(),
			VerificationMode:   string(engine.VerificationMode()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Height = s.proc.Height()
	return result, nil
}

func (s *Server) handleBalance(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	account, err := paramAccount(params, 0, "account")
	if err != nil {
		return nil, err
	}
	balance, err := s.proc.Balance(account)
	if err != nil {
		return nil, err
	}
	return balance.Dec(), nil
}

// handleFaucet credits the configured amount to [account]. It exists only
// when a faucet amount is configured.
func (s *Server) handleFaucet(ctx context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	if s.faucet == nil || s.faucet.IsZero() {
		return nil, errFeatureDisabled
	}
	account, err := paramAccount(params, 0, "account")
	if err != nil {
		return nil, err
	}
	if err := s.proc.Credit(ctx, account, s.faucet); err != nil {
		return nil, err
	}
	balance, err := s.proc.Balance(account)
	if err != nil {
		return nil, err
	}
	return map[string]string{"credited": s.faucet.Dec(), "balance": balance.Dec()}, nil
}

func optionalAction(params []json.RawMessage, idx int) (jid.Action, error) {
	raw, ok, err := optionalString(params, idx)
	if err != nil || !ok {
		return jid.ActionRegister, err
	}
	action, valid := jid.ParseAction(raw)
	if !valid {
		return 0, invalidParams("unknown action %q", raw)
	}
	return action, nil
}

func hashHex(name string) string {
	hash := jid.HashJID(name)
	return hex.EncodeToString(hash[:])
}
