package join

import (
	"context"
	"sort"

	"bytedb/internal/joinerr"
)

// errorReport is what a failing peer sends to rank 0 after phase 4's
// barrier, spec.md §7's rendezvous for the cohort-wide error summary.
type errorReport struct {
	Rank uint32
	Kind joinerr.Kind
	Msg  string
}

// broadcastMsg is rank 0's answer, sent to every other peer (rank 0 keeps
// its own copy directly) so every peer's Run returns the same Result.
type broadcastMsg struct {
	Code        uint64
	Message     string
	OutputCount uint64
	OK          bool
}

// registerAggregationHandlers wires the two handlers the final
// aggregation round uses. Separate from registerHandlers so the phase
// handlers (router.go) stay focused on the join algorithm itself.
func (d *Driver) registerAggregationHandlers() {
	d.trans.Handle(handlerReportError, func(from uint32, payload any) error {
		msg, ok := payload.(errorReport)
		if !ok {
			return joinerr.Shapef("report_error: unexpected payload type %T", payload)
		}
		d.reportedErrs = append(d.reportedErrs, reportedErr{rank: msg.Rank, kind: msg.Kind, msg: msg.Msg})
		return nil
	})
	d.trans.Handle(handlerBroadcastResult, func(from uint32, payload any) error {
		msg, ok := payload.(broadcastMsg)
		if !ok {
			return joinerr.Shapef("broadcast_result: unexpected payload type %T", payload)
		}
		d.finalResult = &Result{OK: msg.OK, Code: msg.Code, Message: msg.Message, OutputCount: msg.OutputCount}
		return nil
	})
}

// aggregate runs the two-round protocol spec.md §4.6/§7 describes: every
// failing peer reports its error to rank 0, a barrier lets rank 0 see
// every report plus the summed output count, rank 0 picks the canonical
// message and the maximum error code, and broadcasts the result back to
// everyone so Run returns an identical Result on every peer.
func (d *Driver) aggregate(ctx context.Context) (*Result, error) {
	self := d.trans.Rank()

	if d.failed() {
		if err := d.trans.SendAsync(0, handlerReportError, errorReport{Rank: self, Kind: d.err.Kind, Msg: d.err.Error()}); err != nil {
			return nil, err
		}
	}
	if err := d.barrier(ctx); err != nil {
		return nil, err
	}

	summed, err := d.trans.AllReduceSum(ctx, d.localOutputCount)
	if err != nil {
		return nil, err
	}

	if self == 0 {
		result := d.computeRootResult(summed)
		for rank := uint32(1); rank < d.trans.Size(); rank++ {
			if err := d.trans.SendAsync(rank, handlerBroadcastResult, broadcastMsg{
				Code: result.Code, Message: result.Message, OutputCount: result.OutputCount, OK: result.OK,
			}); err != nil {
				return nil, err
			}
		}
		d.finalResult = result
	}

	if err := d.barrier(ctx); err != nil {
		return nil, err
	}

	if d.finalResult == nil {
		return nil, joinerr.Transportf("join: root never broadcast a result")
	}
	return d.finalResult, nil
}

// computeRootResult runs only on rank 0, after it has collected every
// reported failure (its own included). It picks the error message of the
// lowest-ranked failing peer — its own, if rank 0 itself failed — and the
// maximum error code across every report, per spec.md §4.6/§7.
func (d *Driver) computeRootResult(outputCount uint64) *Result {
	reports := append([]reportedErr{}, d.reportedErrs...)
	if d.failed() {
		reports = append([]reportedErr{{rank: 0, kind: d.err.Kind, msg: d.err.Error()}}, reports...)
	}
	if len(reports) == 0 {
		return &Result{OK: true, OutputCount: outputCount}
	}

	sort.SliceStable(reports, func(i, j int) bool { return reports[i].rank < reports[j].rank })
	first := reports[0]

	maxCode := uint64(0)
	for _, r := range reports {
		if c := r.kind.Code(); c > maxCode {
			maxCode = c
		}
	}
	msg := first.msg
	if msg == "" {
		msg = "peer failed"
	}
	return &Result{OK: false, Code: maxCode, Message: msg, OutputCount: outputCount}
}
