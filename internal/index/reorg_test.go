package index

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"anchorproto/anchord/internal/protocol"
)

func TestReorg_ResolvedBecomesOrphan(t *testing.T) {
	ix := testIndexer(t)
	txA, txB := mkTxid("aa"), mkTxid("bb")

	mustIndex(t, ix, block(100, msgTx(t, txA, 0, &protocol.Message{Kind: protocol.KindText, Body: []byte("root")})))
	mustIndex(t, ix, block(101, msgTx(t, txB, 0, &protocol.Message{
		Kind:    protocol.KindText,
		Anchors: []protocol.Anchor{anchorTo(t, txA, 0)},
		Body:    []byte("reply"),
	})))

	res, err := ix.OnReorg([]string{txA})
	if err != nil {
		t.Fatalf("reorg: %v", err)
	}
	if res.MessagesRemoved != 1 {
		t.Errorf("removed = %d, want 1", res.MessagesRemoved)
	}
	if res.AnchorsRevised != 1 {
		t.Errorf("revised = %d, want 1", res.AnchorsRevised)
	}
	if res.Watermark != 99 {
		t.Errorf("watermark = %d, want 99", res.Watermark)
	}

	if _, _, err := ix.GetMessage(MessageRef{Txid: txA, Vout: 0}); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("A still present after reorg: %v", err)
	}

	a := anchorState(t, ix, MessageRef{Txid: txB, Vout: 0}, 0)
	if a.Status != StatusOrphan {
		t.Errorf("B's anchor = %s, want orphan after target removal", a.Status)
	}
	if len(a.Candidates) != 0 {
		t.Errorf("orphan anchor still lists candidates: %v", a.Candidates)
	}

	stats, err := ix.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 1 || stats.TotalRoots != 0 || stats.TotalReplies != 1 {
		t.Errorf("message counts = %d/%d/%d, want 1/0/1", stats.TotalMessages, stats.TotalRoots, stats.TotalReplies)
	}
	assertConsistent(t, ix)
}

func TestReorg_AmbiguousCollapsesToResolved(t *testing.T) {
	ix := testIndexer(t)
	shared := strings.Repeat("ab", 8)
	txE := shared + strings.Repeat("e1", 24)
	txF := shared + strings.Repeat("f2", 24)
	txG := mkTxid("99")

	mustIndex(t, ix, block(1, msgTx(t, txE, 0, &protocol.Message{Kind: protocol.KindGeneric})))
	mustIndex(t, ix, block(2, msgTx(t, txF, 0, &protocol.Message{Kind: protocol.KindGeneric})))
	mustIndex(t, ix, block(3, msgTx(t, txG, 0, &protocol.Message{
		Kind:    protocol.KindGeneric,
		Anchors: []protocol.Anchor{anchorTo(t, txE, 0)},
	})))

	if a := anchorState(t, ix, MessageRef{Txid: txG, Vout: 0}, 0); a.Status != StatusAmbiguous {
		t.Fatalf("precondition: status = %s, want ambiguous", a.Status)
	}

	// Removing one candidate is the explicit invalidation that lets an
	// ambiguous anchor collapse.
	if _, err := ix.OnReorg([]string{txF}); err != nil {
		t.Fatalf("reorg: %v", err)
	}

	a := anchorState(t, ix, MessageRef{Txid: txG, Vout: 0}, 0)
	if a.Status != StatusResolved {
		t.Fatalf("status = %s, want resolved after candidate removal", a.Status)
	}
	want := []MessageRef{{Txid: txE, Vout: 0}}
	if diff := cmp.Diff(want, a.Candidates); diff != "" {
		t.Errorf("target mismatch (-want +got):\n%s", diff)
	}
	assertConsistent(t, ix)
}

func TestReorg_ResolvedSwitchesToSurvivingCandidate(t *testing.T) {
	ix := testIndexer(t)
	shared := strings.Repeat("cd", 8)
	txE := shared + strings.Repeat("01", 24)
	txF := shared + strings.Repeat("02", 24)
	txG := mkTxid("88")

	// G resolves to E while E is the only match; F collides later but
	// stickiness keeps E the target.
	mustIndex(t, ix, block(1, msgTx(t, txE, 0, &protocol.Message{Kind: protocol.KindGeneric})))
	mustIndex(t, ix, block(2, msgTx(t, txG, 0, &protocol.Message{
		Kind:    protocol.KindGeneric,
		Anchors: []protocol.Anchor{anchorTo(t, txE, 0)},
	})))
	mustIndex(t, ix, block(3, msgTx(t, txF, 0, &protocol.Message{Kind: protocol.KindGeneric})))

	// Removing E forces a fresh resolution, which finds F.
	if _, err := ix.OnReorg([]string{txE}); err != nil {
		t.Fatalf("reorg: %v", err)
	}

	a := anchorState(t, ix, MessageRef{Txid: txG, Vout: 0}, 0)
	if a.Status != StatusResolved {
		t.Fatalf("status = %s, want resolved to the surviving candidate", a.Status)
	}
	want := []MessageRef{{Txid: txF, Vout: 0}}
	if diff := cmp.Diff(want, a.Candidates); diff != "" {
		t.Errorf("target mismatch (-want +got):\n%s", diff)
	}
	assertConsistent(t, ix)
}

func TestReorg_RemovingReplyAdjustsCounters(t *testing.T) {
	ix := testIndexer(t)
	txA, txB := mkTxid("1a"), mkTxid("1b")

	mustIndex(t, ix, block(1, msgTx(t, txA, 0, &protocol.Message{Kind: protocol.KindText, Body: []byte("root")})))
	mustIndex(t, ix, block(2, msgTx(t, txB, 0, &protocol.Message{
		Kind:    protocol.KindText,
		Anchors: []protocol.Anchor{anchorTo(t, txA, 0)},
		Body:    []byte("reply"),
	})))

	if _, err := ix.OnReorg([]string{txB}); err != nil {
		t.Fatalf("reorg: %v", err)
	}

	stats, err := ix.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 1 || stats.TotalReplies != 0 || stats.TotalAnchors != 0 {
		t.Errorf("counts after removing reply = %d msgs / %d replies / %d anchors, want 1/0/0",
			stats.TotalMessages, stats.TotalReplies, stats.TotalAnchors)
	}

	// A's thread is empty again.
	thread, err := ix.GetThread(MessageRef{Txid: txA, Vout: 0}, 0)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(thread) != 0 {
		t.Errorf("thread = %v, want empty", thread)
	}
	assertConsistent(t, ix)
}

func TestReorg_UnknownTxidIsNoop(t *testing.T) {
	ix := testIndexer(t)
	mustIndex(t, ix, block(1, msgTx(t, mkTxid("2a"), 0, &protocol.Message{Kind: protocol.KindGeneric})))

	res, err := ix.OnReorg([]string{mkTxid("ee")})
	if err != nil {
		t.Fatalf("reorg: %v", err)
	}
	if res.MessagesRemoved != 0 || res.AnchorsRevised != 0 {
		t.Errorf("noop reorg changed state: %+v", res)
	}
	if res.Watermark != 1 {
		t.Errorf("watermark = %d, want unchanged 1", res.Watermark)
	}
	assertConsistent(t, ix)
}

func TestReorg_WatermarkAllowsReindex(t *testing.T) {
	ix := testIndexer(t)
	txA := mkTxid("3a")
	mustIndex(t, ix, block(50, msgTx(t, txA, 0, &protocol.Message{Kind: protocol.KindGeneric})))

	if _, err := ix.OnReorg([]string{txA}); err != nil {
		t.Fatalf("reorg: %v", err)
	}

	// Replacement block at the same height must now be accepted.
	if _, err := ix.OnNewBlock(block(50, msgTx(t, mkTxid("3b"), 0, &protocol.Message{Kind: protocol.KindGeneric}))); err != nil {
		t.Errorf("replacement block rejected: %v", err)
	}
	assertConsistent(t, ix)
}

func TestReorg_InvalidTxid(t *testing.T) {
	ix := testIndexer(t)
	if _, err := ix.OnReorg([]string{"nope"}); err == nil {
		t.Error("expected error for malformed txid")
	}
}
