package join

import (
	"bytedb/internal/joinerr"
	"bytedb/internal/jsonvalue"
	"bytedb/internal/storeapi"
)

const handlerDeposit = "deposit"
const handlerPlan = "plan"
const handlerReceiveJoinData = "receive_join_data"

// registerHandlers installs the three remote handlers spec.md §9 names
// (deposit, plan, receive_join_data). Must run before phase 1 starts,
// since deposits can arrive from any peer as soon as anyone starts
// phase 1.
func (d *Driver) registerHandlers() {
	d.trans.Handle(handlerDeposit, func(from uint32, payload any) error {
		msg, ok := payload.(depositMsg)
		if !ok {
			return joinerr.Shapef("deposit: unexpected payload type %T", payload)
		}
		d.depositLocal(msg.Side, msg.Entry)
		return nil
	})
	d.trans.Handle(handlerPlan, func(from uint32, payload any) error {
		msg, ok := payload.(planMsg)
		if !ok {
			return joinerr.Shapef("plan: unexpected payload type %T", payload)
		}
		d.candidates = append(d.candidates, mergeCandidate{RHSIndices: msg.RHSIndices, LHSPack: msg.LHSPack})
		return nil
	})
	d.trans.Handle(handlerReceiveJoinData, func(from uint32, payload any) error {
		msg, ok := payload.(receiveJoinDataMsg)
		if !ok {
			return joinerr.Shapef("receive_join_data: unexpected payload type %T", payload)
		}
		d.joinData = append(d.joinData, joinDatum{LHSIndices: msg.LHSIndices, RHSRows: msg.Payload})
		return nil
	})
}

// depositLocal applies a deposit's effect: appending to this peer's
// HashIndex[side]. partitionSide sends every row through SendAsync, a
// self-addressed row included, so the deposit handler is the one caller
// and the local and remote paths share the same effect.
func (d *Driver) depositLocal(side Side, e HashEntry) {
	if side == LHS {
		d.lhsIndex.add(e)
	} else {
		d.rhsIndex.add(e)
	}
}

// partitionSide is phase 1 for one side: iterate every row the filter
// lets through, hash its join-key tuple, and send it to its home peer
// (spec.md §4.2). Sends are fire-and-forget; completion is established
// by the caller's subsequent barrier.
func (d *Driver) partitionSide(side Side, shard storeapi.Shard, onColumns []string) error {
	n := d.trans.Size()
	self := d.trans.Rank()
	sendCount := 0

	return shard.ForEachSelected(func(rowIndex uint64, rec storeapi.Record) error {
		h := jsonvalue.HashKeyTuple(func(col string) (jsonvalue.Value, bool) {
			return rec.Get(col)
		}, onColumns)
		dest := uint32(h % uint64(n))
		entry := HashEntry{Hash: h, OwnerRank: self, OwnerIdx: rowIndex}

		if err := d.trans.SendAsync(dest, handlerDeposit, depositMsg{Side: side, Entry: entry}); err != nil {
			return joinerr.Transportf("deposit row %d of %s: %w", rowIndex, side, err)
		}
		sendCount++
		if sendCount%progressPumpInterval == 0 {
			if pumper, ok := d.trans.(interface{ Pump() error }); ok {
				if err := pumper.Pump(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// progressPumpInterval is the K suggested by spec.md §5 for runtimes
// lacking their own flow control.
const progressPumpInterval = 4096
