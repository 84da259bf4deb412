package rpc

import (
	"context"
	"encoding/json"

	"jidchain/native/jid"
)

func (s *Server) adminMethods() map[string]methodHandler {
	return map[string]methodHandler{
		"jid_setPaused":          s.handleSetPaused,
		"jid_blacklist":          s.handleBlacklist,
		"jid_unblacklist":        s.handleUnblacklist,
		"jid_adminRevoke":        s.handleAdminRevoke,
		"jid_withdraw":           s.handleWithdraw,
		"jid_setRegistrationFee": s.handleSetRegistrationFee,
		"jid_transferOwnership":  s.handleTransferOwnership,
	}
}

// adminCall runs fn as the authenticated caller. Authorisation is enforced by
// the engine against the stored owner.
func (s *Server) adminCall(ctx context.Context, caller callerInfo, operation string, fn func(*jid.Engine, jid.Call) error) (interface{}, error) {
	account, err := caller.require()
	if err != nil {
		return nil, err
	}
	if err := s.proc.Execute(ctx, operation, account, nil, fn); err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "height": s.proc.Height()}, nil
}

func (s *Server) handleSetPaused(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	paused, err := paramBool(params, 0, "paused")
	if err != nil {
		return nil, err
	}
	return s.adminCall(ctx, caller, "set_paused", func(engine *jid.Engine, call jid.Call) error {
		return engine.SetPaused(call, paused)
	})
}

func (s *Server) handleBlacklist(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	return s.adminCall(ctx, caller, "blacklist", func(engine *jid.Engine, call jid.Call) error {
		return engine.Blacklist(call, name)
	})
}

func (s *Server) handleUnblacklist(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	return s.adminCall(ctx, caller, "unblacklist", func(engine *jid.Engine, call jid.Call) error {
		return engine.Unblacklist(call, name)
	})
}

// handleAdminRevoke params: [jid, reason]. Only the reason digest is emitted.
func (s *Server) handleAdminRevoke(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	name, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	reason, _, err := optionalString(params, 1)
	if err != nil {
		return nil, err
	}
	return s.adminCall(ctx, caller, "admin_revoke", func(engine *jid.Engine, call jid.Call) error {
		return engine.AdminRevoke(call, name, reason)
	})
}

func (s *Server) handleWithdraw(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	amount, err := paramAmount(params, 0, "amount")
	if err != nil {
		return nil, err
	}
	return s.adminCall(ctx, caller, "withdraw", func(engine *jid.Engine, call jid.Call) error {
		return engine.Withdraw(call, amount)
	})
}

func (s *Server) handleSetRegistrationFee(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	fee, err := paramAmount(params, 0, "fee")
	if err != nil {
		return nil, err
	}
	return s.adminCall(ctx, caller, "set_fee", func(engine *jid.Engine, call jid.Call) error {
		return engine.SetRegistrationFee(call, fee)
	})
}

func (s *Server) handleTransferOwnership(ctx context.Context, caller callerInfo, params []json.RawMessage) (interface{}, error) {
	newOwner, err := paramAccount(params, 0, "newOwner")
	if err != nil {
		return nil, err
	}
	return s.adminCall(ctx, caller, "transfer_ownership", func(engine *jid.Engine, call jid.Call) error {
		return engine.TransferOwnership(call, newOwner)
	})
}
