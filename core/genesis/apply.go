package genesis

import (
	"context"
	"fmt"

	"jidchain/core"
	"jidchain/native/jid"
)

// Apply deploys the registry described by spec. On a fresh processor it also
// credits allocations, installs the genesis blacklist and sets the fee; on a
// populated one it only confirms the fingerprint.
func Apply(ctx context.Context, proc *core.Processor, spec *GenesisSpec) error {
	if proc == nil || spec == nil {
		return fmt.Errorf("genesis: processor and spec required")
	}
	fingerprint, err := spec.Fingerprint()
	if err != nil {
		return fmt.Errorf("genesis: fingerprint: %w", err)
	}
	fresh := proc.Height() == 0
	params := jid.Params{ChainLabel: spec.ChainLabel, GenesisHash: fingerprint, Contract: spec.ContractAccount()}
	if err := proc.Bootstrap(ctx, spec.AdminAccount(), params); err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	for _, entry := range spec.Allocations() {
		if err := proc.Credit(ctx, entry.Account, entry.Amount); err != nil {
			return fmt.Errorf("genesis: alloc %s: %w", entry.Account, err)
		}
	}
	admin := spec.AdminAccount()
	for _, name := range spec.BlacklistedJIDs() {
		name := name
		if err := proc.Execute(ctx, "blacklist", admin, nil, func(engine *jid.Engine, call jid.Call) error {
			return engine.Blacklist(call, name)
		}); err != nil {
			return fmt.Errorf("genesis: blacklist: %w", err)
		}
	}
	if fee := spec.Fee(); fee != nil {
		if err := proc.Execute(ctx, "set_fee", admin, nil, func(engine *jid.Engine, call jid.Call) error {
			return engine.SetRegistrationFee(call, fee)
		}); err != nil {
			return fmt.Errorf("genesis: registration fee: %w", err)
		}
	}
	return nil
}
