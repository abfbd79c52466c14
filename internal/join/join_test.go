package join

import (
	"context"
	"testing"

	"bytedb/internal/jsonvalue"
	"bytedb/internal/predicate"
	"bytedb/internal/storeapi"
	"bytedb/internal/transport"
	"bytedb/internal/transport/inprocess"
)

func mustCompile(t *testing.T, doc string) *predicate.Compiled {
	t.Helper()
	expr, err := predicate.ParseJSON([]byte(doc))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	c, err := predicate.Compile(expr)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return c
}

func rec(fields ...jsonvalue.Field) storeapi.Record {
	return storeapi.Record{Fields: fields}
}

func f(key string, v jsonvalue.Value) jsonvalue.Field {
	return jsonvalue.Field{Key: key, Value: v}
}

// runCohort drives n peers concurrently through a Driver built from
// cfgFor(rank), returning every peer's Result in rank order.
func runCohort(t *testing.T, n int, cfgFor func(rank uint32) *Config) []*Result {
	t.Helper()
	peers := inprocess.NewCohort(n)
	results := make([]*Result, n)
	errs := make([]error, n)
	done := make(chan int, n)
	for i, p := range peers {
		go func(i int, p transport.Transport) {
			d := NewDriver(p, cfgFor(uint32(i)))
			results[i], errs[i] = d.Run(context.Background())
			done <- i
		}(i, p)
	}
	for range peers {
		<-done
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("peer %d: Run returned an error: %v", i, err)
		}
	}
	return results
}

func TestTwoPeerInnerJoin(t *testing.T) {
	leftByRank := [][]storeapi.Record{
		{rec(f("id", jsonvalue.Int64(1)), f("name", jsonvalue.String("a"))), rec(f("id", jsonvalue.Int64(2)), f("name", jsonvalue.String("b")))},
		{rec(f("id", jsonvalue.Int64(3)), f("name", jsonvalue.String("c"))), rec(f("id", jsonvalue.Int64(4)), f("name", jsonvalue.String("d")))},
	}
	rightByRank := [][]storeapi.Record{
		{rec(f("id", jsonvalue.Int64(2)), f("val", jsonvalue.Int64(20)))},
		{rec(f("id", jsonvalue.Int64(3)), f("val", jsonvalue.Int64(30))), rec(f("id", jsonvalue.Int64(5)), f("val", jsonvalue.Int64(50)))},
	}

	openers := make([]*memOpener, 2)
	results := runCohort(t, 2, func(rank uint32) *Config {
		opener := &memOpener{rank: rank}
		openers[rank] = opener
		return &Config{
			Left:         newMemShard(rank, []string{"id", "name"}, leftByRank[rank]),
			Right:        newMemShard(rank, []string{"id", "val"}, rightByRank[rank]),
			Output:       opener,
			OutputPath:   "mem://out",
			On:           []string{"id"},
			RightColumns: []string{"val"},
			How:          "inner",
		}
	})

	// Every peer's Result carries the same cohort-wide count.
	total := results[0].OutputCount
	for i, r := range results {
		if !r.OK {
			t.Fatalf("peer %d: expected success, got %q", i, r.Message)
		}
		if r.OutputCount != total {
			t.Fatalf("peer %d: expected the cohort-wide count %d, got %d", i, total, r.OutputCount)
		}
	}
	if total != 2 {
		t.Fatalf("expected 2 joined rows across the cohort, got %d", total)
	}

	var gotRows []storeapi.Record
	for _, o := range openers {
		if o.last != nil {
			gotRows = append(gotRows, o.last.rows...)
		}
	}
	if len(gotRows) != 2 {
		t.Fatalf("expected 2 output rows total, got %d", len(gotRows))
	}
	seen := map[int64]bool{}
	for _, row := range gotRows {
		idv, ok := row.Get("id_l")
		if !ok {
			t.Fatalf("joined row missing id_l: %+v", row)
		}
		seen[idv.Int64] = true
		nameV, _ := row.Get("name_l")
		valV, ok := row.Get("val_r")
		if !ok {
			t.Fatalf("joined row missing val_r: %+v", row)
		}
		switch idv.Int64 {
		case 2:
			if nameV.Str != "b" || valV.Int64 != 20 {
				t.Errorf("id=2 row mismatched: name=%q val=%d", nameV.Str, valV.Int64)
			}
		case 3:
			if nameV.Str != "c" || valV.Int64 != 30 {
				t.Errorf("id=3 row mismatched: name=%q val=%d", nameV.Str, valV.Int64)
			}
		default:
			t.Errorf("unexpected joined id %d", idv.Int64)
		}
	}
	if !seen[2] || !seen[3] {
		t.Fatalf("expected joined ids {2,3}, got %v", seen)
	}
}

func TestSinglePeerSelfJoinNoMatches(t *testing.T) {
	opener := &memOpener{}
	results := runCohort(t, 1, func(rank uint32) *Config {
		return &Config{
			Left:   newMemShard(rank, []string{"id"}, []storeapi.Record{rec(f("id", jsonvalue.Int64(1)))}),
			Right:  newMemShard(rank, []string{"id"}, []storeapi.Record{rec(f("id", jsonvalue.Int64(2)))}),
			Output: opener, OutputPath: "mem://out",
			On: []string{"id"}, How: "inner",
		}
	})
	if !results[0].OK || results[0].OutputCount != 0 {
		t.Fatalf("expected a clean run with zero matches, got %+v", results[0])
	}
}

func TestConfigErrorReportedToAllPeers(t *testing.T) {
	results := runCohort(t, 2, func(rank uint32) *Config {
		return &Config{
			Left:   newMemShard(rank, nil, nil),
			Right:  newMemShard(rank, nil, nil),
			Output: &memOpener{rank: rank}, OutputPath: "mem://out",
			How: "left", // unsupported
		}
	})
	for i, r := range results {
		if r.OK {
			t.Fatalf("peer %d: expected failure for an unsupported how=%q", i, "left")
		}
	}
	if results[0].Message == "" {
		t.Fatalf("expected rank 0 to carry a non-empty failure message")
	}
}

func TestFourPeerInnerJoinWithFilter(t *testing.T) {
	n := 4
	leftRows := make([][]storeapi.Record, n)
	rightRows := make([][]storeapi.Record, n)
	for id := int64(0); id < 8; id++ {
		rank := uint32(id) % uint32(n)
		leftRows[rank] = append(leftRows[rank], rec(f("id", jsonvalue.Int64(id)), f("amount", jsonvalue.Int64(id*10))))
		rightRows[rank] = append(rightRows[rank], rec(f("id", jsonvalue.Int64(id)), f("flag", jsonvalue.Bool(id%2 == 0))))
	}

	results := runCohort(t, n, func(rank uint32) *Config {
		return &Config{
			Left:        newMemShard(rank, []string{"id", "amount"}, leftRows[rank]),
			Right:       newMemShard(rank, []string{"id", "flag"}, rightRows[rank]),
			Output:      &memOpener{rank: rank},
			OutputPath:  "mem://out",
			On:          []string{"id"},
			LeftFilter:  mustCompile(t, `{"gt": [{"var": "keys.amount"}, 20]}`),
			RightFilter: mustCompile(t, `{"var": "keys.flag"}`),
			How:         "inner",
		}
	})

	// Every peer's Result carries the same cohort-wide count.
	total := results[0].OutputCount
	for i, r := range results {
		if !r.OK {
			t.Fatalf("peer %d: %q", i, r.Message)
		}
		if r.OutputCount != total {
			t.Fatalf("peer %d: expected the cohort-wide count %d, got %d", i, total, r.OutputCount)
		}
	}
	// ids with amount>20 (id>2) and flag true (id even): id in {4, 6} -> 2 matches.
	if total != 2 {
		t.Fatalf("expected 2 joined rows after filtering, got %d", total)
	}
}
