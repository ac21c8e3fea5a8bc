package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
)

// ExtractEntityID returns the first indexed argument of the first log that
// matches eventName. Every event the gateway reads puts the entity id there.
// A missing event, a log without topics or an id wider than 64 bits yields
// (0, false).
func ExtractEntityID(logs []*types.Log, contractABI abi.ABI, eventName string) (uint64, bool) {
	event, ok := contractABI.Events[eventName]
	if !ok {
		return 0, false
	}
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) < 2 || lg.Topics[0] != event.ID {
			continue
		}
		id := lg.Topics[1].Big()
		if !id.IsUint64() || id.Sign() == 0 {
			return 0, false
		}
		return id.Uint64(), true
	}
	return 0, false
}

// eventAmount decodes the single non-indexed uint256 of the first matching
// log, as carried by CreditMinted and CreditsIssued.
func eventAmount(logs []*types.Log, contractABI abi.ABI, eventName string) *big.Int {
	event, ok := contractABI.Events[eventName]
	if !ok {
		return nil
	}
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(values) != 1 {
			return nil
		}
		amount, _ := values[0].(*big.Int)
		return amount
	}
	return nil
}
