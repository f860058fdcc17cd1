package subscription

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
)

// FromChainConfig expands a chain's contract configuration into static subscriptions:
// one per (address, event), one per wildcard event, and one template per event of
// contracts without addresses.
func FromChainConfig(chain config.ChainConfig) []Subscription {
	var subs []Subscription

	for _, contract := range chain.Contracts {
		for _, ev := range contract.Events {
			base := Subscription{
				ChainID:        chain.ID,
				ContractName:   contract.Name,
				EventSignature: ev.Signature,
				Filters:        toFilters(ev.Filters),
			}

			switch {
			case contract.Wildcard:
				s := base
				s.Wildcard = true
				subs = append(subs, s)
			case len(contract.Addresses) == 0:
				subs = append(subs, base)
			default:
				for _, a := range contract.Addresses {
					s := base
					addr := common.HexToAddress(a)
					s.Address = &addr
					subs = append(subs, s)
				}
			}
		}
	}

	return subs
}

// RegisterConfig registers every subscription of every configured chain.
func (r *Registry) RegisterConfig(cfg *config.Config) error {
	for _, chain := range cfg.Chains {
		for _, s := range FromChainConfig(chain) {
			if err := r.RegisterStatic(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func toFilters(raw []map[string]any) []EventFilter {
	if len(raw) == 0 {
		return nil
	}
	out := make([]EventFilter, len(raw))
	for i, f := range raw {
		out[i] = EventFilter(f)
	}
	return out
}
