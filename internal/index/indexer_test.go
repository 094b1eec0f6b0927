package index

import (
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"anchorproto/anchord/internal/chain"
	"anchorproto/anchord/internal/protocol"
)

func testIndexer(t *testing.T) *Indexer {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewIndexer(store, protocol.DefaultRegistry())
}

// mkTxid builds a deterministic 64-hex txid from a 2-char hex seed.
func mkTxid(seed string) string {
	return strings.Repeat(seed, 32)
}

func anchorTo(t *testing.T, txid string, vout uint8) protocol.Anchor {
	t.Helper()
	raw, err := hex.DecodeString(txid[:16])
	if err != nil {
		t.Fatalf("bad txid %q: %v", txid, err)
	}
	var a protocol.Anchor
	copy(a.TxidPrefix[:], raw)
	a.Vout = vout
	return a
}

func opReturnScript(data []byte) []byte {
	if len(data) > 75 {
		return append([]byte{0x6a, 0x4c, byte(len(data))}, data...)
	}
	return append([]byte{0x6a, byte(len(data))}, data...)
}

// msgTx builds a transaction carrying one message via OP_RETURN at the
// given output index.
func msgTx(t *testing.T, txid string, vout uint8, msg *protocol.Message) chain.Transaction {
	t.Helper()
	payload, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encoding message: %v", err)
	}
	outs := make([]chain.TxOut, int(vout)+1)
	for i := range outs {
		outs[i] = chain.TxOut{Value: 546, Script: []byte{0x76, 0xa9}}
	}
	outs[vout] = chain.TxOut{Script: opReturnScript(payload)}
	return chain.Transaction{Txid: txid, Outputs: outs}
}

func block(height int64, txs ...chain.Transaction) *chain.Block {
	return &chain.Block{Height: height, Time: 1_700_000_000 + height, Transactions: txs}
}

func mustIndex(t *testing.T, ix *Indexer, b *chain.Block) *BlockResult {
	t.Helper()
	res, err := ix.OnNewBlock(b)
	if err != nil {
		t.Fatalf("indexing block %d: %v", b.Height, err)
	}
	return res
}

// assertConsistent checks the incremental counters against a full recount.
func assertConsistent(t *testing.T, ix *Indexer) {
	t.Helper()
	stats, err := ix.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	recount, err := ix.Recount()
	if err != nil {
		t.Fatalf("recount: %v", err)
	}
	if diff := cmp.Diff(recount, stats); diff != "" {
		t.Errorf("incremental counters diverge from recount (-recount +counters):\n%s", diff)
	}
	if got := stats.ResolvedAnchors + stats.OrphanAnchors + stats.AmbiguousAnchors; got != stats.TotalAnchors {
		t.Errorf("status counters sum to %d, total_anchors is %d", got, stats.TotalAnchors)
	}
}

func anchorState(t *testing.T, ix *Indexer, ref MessageRef, idx int) AnchorState {
	t.Helper()
	_, anchors, err := ix.GetMessage(ref)
	if err != nil {
		t.Fatalf("get message %s: %v", ref, err)
	}
	if idx >= len(anchors) {
		t.Fatalf("message %s has %d anchors, want index %d", ref, len(anchors), idx)
	}
	return anchors[idx]
}

func TestScenario_RootAndReply(t *testing.T) {
	ix := testIndexer(t)
	txA, txB := mkTxid("aa"), mkTxid("bb")

	mustIndex(t, ix, block(100, msgTx(t, txA, 0, &protocol.Message{
		Kind: protocol.KindText, Body: []byte("hello"),
	})))
	mustIndex(t, ix, block(101, msgTx(t, txB, 0, &protocol.Message{
		Kind:    protocol.KindText,
		Anchors: []protocol.Anchor{anchorTo(t, txA, 0)},
		Body:    []byte("reply"),
	})))

	refA := MessageRef{Txid: txA, Vout: 0}
	refB := MessageRef{Txid: txB, Vout: 0}

	a := anchorState(t, ix, refB, 0)
	if a.Status != StatusResolved {
		t.Fatalf("B's anchor status = %s, want resolved", a.Status)
	}
	if diff := cmp.Diff([]MessageRef{refA}, a.Candidates); diff != "" {
		t.Errorf("resolved target mismatch (-want +got):\n%s", diff)
	}

	thread, err := ix.GetThread(refA, 0)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(thread) != 1 || thread[0].Ref != refB {
		t.Errorf("GetThread(A) = %v, want [B]", thread)
	}
	if thread[0].Depth != 1 {
		t.Errorf("B's depth = %d, want 1", thread[0].Depth)
	}

	stats, err := ix.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 2 || stats.TotalRoots != 1 || stats.TotalReplies != 1 {
		t.Errorf("message counts = %d/%d/%d, want 2/1/1", stats.TotalMessages, stats.TotalRoots, stats.TotalReplies)
	}
	if stats.ResolvedAnchors != 1 || stats.TotalAnchors != 1 {
		t.Errorf("anchor counts = %d resolved of %d, want 1 of 1", stats.ResolvedAnchors, stats.TotalAnchors)
	}
	if stats.PerKind[protocol.KindText] != 2 {
		t.Errorf("per-kind text = %d, want 2", stats.PerKind[protocol.KindText])
	}
	if stats.LastIndexedBlock != 101 {
		t.Errorf("last indexed block = %d, want 101", stats.LastIndexedBlock)
	}
	assertConsistent(t, ix)
}

func TestScenario_OrphanPromotion(t *testing.T) {
	ix := testIndexer(t)
	txC, txD := mkTxid("cc"), mkTxid("dd")

	mustIndex(t, ix, block(10, msgTx(t, txC, 0, &protocol.Message{
		Kind:    protocol.KindText,
		Anchors: []protocol.Anchor{anchorTo(t, txD, 0)},
		Body:    []byte("early reply"),
	})))

	refC := MessageRef{Txid: txC, Vout: 0}
	if a := anchorState(t, ix, refC, 0); a.Status != StatusOrphan {
		t.Fatalf("C's anchor status = %s, want orphan before D arrives", a.Status)
	}

	res := mustIndex(t, ix, block(11, msgTx(t, txD, 0, &protocol.Message{
		Kind: protocol.KindText, Body: []byte("late parent"),
	})))
	if res.Promoted != 1 {
		t.Errorf("promoted = %d, want 1", res.Promoted)
	}

	a := anchorState(t, ix, refC, 0)
	if a.Status != StatusResolved {
		t.Fatalf("C's anchor status = %s, want resolved after D", a.Status)
	}
	want := []MessageRef{{Txid: txD, Vout: 0}}
	if diff := cmp.Diff(want, a.Candidates); diff != "" {
		t.Errorf("target mismatch (-want +got):\n%s", diff)
	}

	// D's thread now contains C.
	thread, err := ix.GetThread(MessageRef{Txid: txD, Vout: 0}, 0)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(thread) != 1 || thread[0].Ref != refC {
		t.Errorf("GetThread(D) = %v, want [C]", thread)
	}
	assertConsistent(t, ix)
}

func TestScenario_OrphanNotPromotedOnVoutMismatch(t *testing.T) {
	ix := testIndexer(t)
	txC, txD := mkTxid("0c"), mkTxid("0d")

	mustIndex(t, ix, block(10, msgTx(t, txC, 0, &protocol.Message{
		Kind:    protocol.KindGeneric,
		Anchors: []protocol.Anchor{anchorTo(t, txD, 0)},
	})))
	// D's message sits at vout 1, the anchor wants vout 0.
	mustIndex(t, ix, block(11, msgTx(t, txD, 1, &protocol.Message{Kind: protocol.KindGeneric})))

	if a := anchorState(t, ix, MessageRef{Txid: txC, Vout: 0}, 0); a.Status != StatusOrphan {
		t.Errorf("anchor status = %s, want orphan (vout mismatch)", a.Status)
	}
	assertConsistent(t, ix)
}

func TestScenario_AmbiguousCollision(t *testing.T) {
	ix := testIndexer(t)
	shared := strings.Repeat("ab", 8)
	txE := shared + strings.Repeat("e1", 24)
	txF := shared + strings.Repeat("f2", 24)
	txG := mkTxid("99")

	mustIndex(t, ix, block(1, msgTx(t, txE, 0, &protocol.Message{Kind: protocol.KindText, Body: []byte("E")})))
	mustIndex(t, ix, block(2, msgTx(t, txF, 0, &protocol.Message{Kind: protocol.KindText, Body: []byte("F")})))
	mustIndex(t, ix, block(3, msgTx(t, txG, 0, &protocol.Message{
		Kind:    protocol.KindText,
		Anchors: []protocol.Anchor{anchorTo(t, txE, 0)}, // prefix matches both E and F
		Body:    []byte("G"),
	})))

	a := anchorState(t, ix, MessageRef{Txid: txG, Vout: 0}, 0)
	if a.Status != StatusAmbiguous {
		t.Fatalf("G's anchor status = %s, want ambiguous", a.Status)
	}
	want := []MessageRef{{Txid: txE, Vout: 0}, {Txid: txF, Vout: 0}}
	if diff := cmp.Diff(want, a.Candidates); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}

	// G appears in both candidates' threads: membership is reported, not guessed.
	for _, parent := range want {
		thread, err := ix.GetThread(parent, 0)
		if err != nil {
			t.Fatalf("thread of %s: %v", parent, err)
		}
		if len(thread) != 1 || thread[0].Ref.Txid != txG {
			t.Errorf("GetThread(%s) = %v, want [G]", parent, thread)
		}
	}
	assertConsistent(t, ix)
}

func TestScenario_AmbiguousAbsorbsLaterCandidates(t *testing.T) {
	ix := testIndexer(t)
	shared := strings.Repeat("cd", 8)
	txE := shared + strings.Repeat("01", 24)
	txF := shared + strings.Repeat("02", 24)
	txH := shared + strings.Repeat("03", 24)
	txG := mkTxid("88")

	mustIndex(t, ix, block(1, msgTx(t, txE, 0, &protocol.Message{Kind: protocol.KindGeneric})))
	mustIndex(t, ix, block(2, msgTx(t, txF, 0, &protocol.Message{Kind: protocol.KindGeneric})))
	mustIndex(t, ix, block(3, msgTx(t, txG, 0, &protocol.Message{
		Kind:    protocol.KindGeneric,
		Anchors: []protocol.Anchor{anchorTo(t, txE, 0)},
	})))
	// A third collision arrives after G is already ambiguous.
	mustIndex(t, ix, block(4, msgTx(t, txH, 0, &protocol.Message{Kind: protocol.KindGeneric})))

	a := anchorState(t, ix, MessageRef{Txid: txG, Vout: 0}, 0)
	if a.Status != StatusAmbiguous {
		t.Fatalf("status = %s, want still ambiguous", a.Status)
	}
	if len(a.Candidates) != 3 {
		t.Errorf("candidates = %v, want E, F and H", a.Candidates)
	}
	assertConsistent(t, ix)
}

func TestResolvedIsSticky(t *testing.T) {
	ix := testIndexer(t)
	shared := strings.Repeat("ef", 8)
	txE := shared + strings.Repeat("11", 24)
	txF := shared + strings.Repeat("22", 24)
	txG := mkTxid("77")

	mustIndex(t, ix, block(1, msgTx(t, txE, 0, &protocol.Message{Kind: protocol.KindGeneric})))
	mustIndex(t, ix, block(2, msgTx(t, txG, 0, &protocol.Message{
		Kind:    protocol.KindGeneric,
		Anchors: []protocol.Anchor{anchorTo(t, txE, 0)},
	})))

	if a := anchorState(t, ix, MessageRef{Txid: txG, Vout: 0}, 0); a.Status != StatusResolved {
		t.Fatalf("status = %s, want resolved", a.Status)
	}

	// F collides later; the first valid full match stays the target.
	mustIndex(t, ix, block(3, msgTx(t, txF, 0, &protocol.Message{Kind: protocol.KindGeneric})))

	a := anchorState(t, ix, MessageRef{Txid: txG, Vout: 0}, 0)
	if a.Status != StatusResolved {
		t.Errorf("status = %s, resolved must not flip on late collision", a.Status)
	}
	want := []MessageRef{{Txid: txE, Vout: 0}}
	if diff := cmp.Diff(want, a.Candidates); diff != "" {
		t.Errorf("target changed (-want +got):\n%s", diff)
	}
	assertConsistent(t, ix)
}

func TestIdempotentIndexing(t *testing.T) {
	ix := testIndexer(t)
	txA := mkTxid("1a")
	msg := &protocol.Message{Kind: protocol.KindText, Body: []byte("once")}

	res1 := mustIndex(t, ix, block(1, msgTx(t, txA, 0, msg)))
	if res1.Indexed != 1 || res1.Duplicates != 0 {
		t.Fatalf("first block: indexed=%d duplicates=%d", res1.Indexed, res1.Duplicates)
	}
	before, err := ix.Recount()
	if err != nil {
		t.Fatalf("recount: %v", err)
	}

	res2 := mustIndex(t, ix, block(2, msgTx(t, txA, 0, msg)))
	if res2.Indexed != 0 || res2.Duplicates != 1 {
		t.Errorf("second block: indexed=%d duplicates=%d, want 0/1", res2.Indexed, res2.Duplicates)
	}

	after, err := ix.Recount()
	if err != nil {
		t.Fatalf("recount: %v", err)
	}
	before.LastIndexedBlock = after.LastIndexedBlock // only the watermark moves
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("duplicate indexing changed state (-before +after):\n%s", diff)
	}
	assertConsistent(t, ix)
}

func TestOutOfOrderBlocksRejected(t *testing.T) {
	ix := testIndexer(t)
	mustIndex(t, ix, block(5))

	for _, h := range []int64{5, 4} {
		if _, err := ix.OnNewBlock(block(h)); !errors.Is(err, ErrOutOfOrder) {
			t.Errorf("block %d after 5: err = %v, want ErrOutOfOrder", h, err)
		}
	}
	if _, err := ix.OnNewBlock(block(6)); err != nil {
		t.Errorf("block 6 after 5 should index: %v", err)
	}
}

func TestCycleTraversalTerminates(t *testing.T) {
	ix := testIndexer(t)
	txA, txB := mkTxid("2a"), mkTxid("2b")

	// A anchors B before B exists; B anchors A. Once B arrives, the
	// resweep closes the loop into a two-node cycle.
	mustIndex(t, ix, block(1, msgTx(t, txA, 0, &protocol.Message{
		Kind:    protocol.KindGeneric,
		Anchors: []protocol.Anchor{anchorTo(t, txB, 0)},
	})))
	mustIndex(t, ix, block(2, msgTx(t, txB, 0, &protocol.Message{
		Kind:    protocol.KindGeneric,
		Anchors: []protocol.Anchor{anchorTo(t, txA, 0)},
	})))

	refA := MessageRef{Txid: txA, Vout: 0}
	refB := MessageRef{Txid: txB, Vout: 0}

	thread, err := ix.GetThread(refA, 0)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(thread) != 1 || thread[0].Ref != refB {
		t.Errorf("GetThread(A) = %v, want exactly [B]", thread)
	}

	thread, err = ix.GetThread(refB, 0)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(thread) != 1 || thread[0].Ref != refA {
		t.Errorf("GetThread(B) = %v, want exactly [A]", thread)
	}
	assertConsistent(t, ix)
}

func TestSelfAnchorAccepted(t *testing.T) {
	ix := testIndexer(t)
	txA := mkTxid("3a")

	mustIndex(t, ix, block(1, msgTx(t, txA, 0, &protocol.Message{
		Kind:    protocol.KindGeneric,
		Anchors: []protocol.Anchor{anchorTo(t, txA, 0)},
	})))

	ref := MessageRef{Txid: txA, Vout: 0}
	a := anchorState(t, ix, ref, 0)
	if a.Status != StatusResolved {
		t.Fatalf("self-anchor status = %s, want resolved", a.Status)
	}

	thread, err := ix.GetThread(ref, 0)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(thread) != 0 {
		t.Errorf("self-anchored thread = %v, want empty (root already visited)", thread)
	}
	assertConsistent(t, ix)
}

func TestGetThread_MissingRoot(t *testing.T) {
	ix := testIndexer(t)
	_, err := ix.GetThread(MessageRef{Txid: mkTxid("4a"), Vout: 0}, 0)
	if !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("err = %v, want ErrMessageNotFound", err)
	}
}

func TestFindByTxidPrefix(t *testing.T) {
	ix := testIndexer(t)
	txA, txB := mkTxid("5a"), mkTxid("5b")
	mustIndex(t, ix, block(1,
		msgTx(t, txA, 0, &protocol.Message{Kind: protocol.KindText, Body: []byte("a")}),
		msgTx(t, txB, 0, &protocol.Message{Kind: protocol.KindText, Body: []byte("b")}),
	))

	msgs, err := ix.FindByTxidPrefix("5a", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Ref.Txid != txA {
		t.Errorf("prefix 5a matched %v, want only A", msgs)
	}

	msgs, err = ix.FindByTxidPrefix("5", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("prefix 5 matched %d messages, want 2", len(msgs))
	}

	if _, err := ix.FindByTxidPrefix("zz", 0); err == nil {
		t.Error("non-hex prefix should fail")
	}
}

func TestUnknownKindIndexedOpaque(t *testing.T) {
	ix := testIndexer(t)
	txA := mkTxid("6a")
	body := []byte{0xde, 0xad}

	mustIndex(t, ix, block(1, msgTx(t, txA, 0, &protocol.Message{Kind: 123, Body: body})))

	msg, _, err := ix.GetMessage(MessageRef{Txid: txA, Vout: 0})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if msg.Kind != 123 {
		t.Errorf("kind = %d, want 123", msg.Kind)
	}
	if diff := cmp.Diff(body, msg.Body); diff != "" {
		t.Errorf("opaque body mismatch (-want +got):\n%s", diff)
	}

	stats, err := ix.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PerKind[123] != 1 {
		t.Errorf("per-kind[123] = %d, want 1", stats.PerKind[123])
	}
	assertConsistent(t, ix)
}

func TestMalformedPayloadsDroppedSilently(t *testing.T) {
	ix := testIndexer(t)
	// Magic followed by a truncated anchor list.
	truncated := []byte{0xa1, 0x1c, 0x00, 0x01, 0x01, 0x02, 0x00}
	txn := chain.Transaction{
		Txid:    mkTxid("7a"),
		Outputs: []chain.TxOut{{Script: opReturnScript(truncated)}},
	}

	res := mustIndex(t, ix, block(1, txn))
	if res.Indexed != 0 {
		t.Errorf("indexed = %d, want 0 for malformed payload", res.Indexed)
	}
	assertConsistent(t, ix)
}
