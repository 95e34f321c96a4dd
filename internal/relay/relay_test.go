package relay

import (
	"image"
	"sync"
	"testing"
	"time"
)

func newTestFrame() *Frame {
	return &Frame{
		Image:     image.NewRGBA(image.Rect(0, 0, 4, 4)),
		Timestamp: time.Now(),
	}
}

func TestFrameRelay_PublishConsume(t *testing.T) {
	r := New()

	// 発行前は何も返らない
	if f := r.ConsumeLatest(); f != nil {
		t.Fatalf("Expected nil before publish, got seq %d", f.Seq)
	}
	if f := r.LatestCommitted(); f != nil {
		t.Fatal("Expected nil committed frame before publish")
	}

	r.Publish(newTestFrame())

	f := r.ConsumeLatest()
	if f == nil {
		t.Fatal("Expected frame after publish")
	}
	if f.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", f.Seq)
	}

	// 新しい発行がなければ2回目はnil
	if f := r.ConsumeLatest(); f != nil {
		t.Errorf("Expected nil on second consume, got seq %d", f.Seq)
	}

	// 確定スロットは消費されない
	if f := r.LatestCommitted(); f == nil || f.Seq != 1 {
		t.Error("Expected committed frame to survive preview consume")
	}
}

func TestFrameRelay_LatestWins(t *testing.T) {
	r := New()

	// 消費せずに3回発行すると最新のみが残る
	r.Publish(newTestFrame())
	r.Publish(newTestFrame())
	r.Publish(newTestFrame())

	f := r.ConsumeLatest()
	if f == nil {
		t.Fatal("Expected frame")
	}
	if f.Seq != 3 {
		t.Errorf("Expected latest frame (seq 3), got seq %d", f.Seq)
	}

	if drops := r.PreviewDrops(); drops != 2 {
		t.Errorf("Expected 2 preview drops, got %d", drops)
	}

	if c := r.LatestCommitted(); c == nil || c.Seq != 3 {
		t.Error("Expected committed slot to hold the latest frame")
	}
}

func TestFrameRelay_MonotonicFreshness(t *testing.T) {
	r := New()
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)

	// 生産者: 発行し続ける
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			r.Publish(newTestFrame())
		}
		close(done)
	}()

	// 消費者: 観測するシーケンス番号は単調増加でなければならない
	var lastSeq uint64
	for {
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}

		if f := r.ConsumeLatest(); f != nil {
			if f.Seq <= lastSeq {
				t.Fatalf("Observed non-monotonic frame: seq %d after %d", f.Seq, lastSeq)
			}
			lastSeq = f.Seq
		}
	}
}

func TestFrameRelay_CommittedIndependentOfPreview(t *testing.T) {
	r := New()

	r.Publish(newTestFrame())
	r.Publish(newTestFrame())

	// プレビューを消費しても確定スロットには影響しない
	_ = r.ConsumeLatest()

	c1 := r.LatestCommitted()
	c2 := r.LatestCommitted()
	if c1 == nil || c2 == nil {
		t.Fatal("Expected committed frame to be repeatedly readable")
	}
	if c1.Seq != c2.Seq {
		t.Errorf("Expected stable committed reads, got %d then %d", c1.Seq, c2.Seq)
	}
}

func TestFrameRelay_CommittedSharesPublishedFrame(t *testing.T) {
	r := New()

	// 発行後のフレームは不変なのでコピーせずに共有する
	published := newTestFrame()
	r.Publish(published)

	c := r.LatestCommitted()
	if c != published {
		t.Error("Expected committed slot to share the published frame")
	}
	if c.Image != published.Image {
		t.Error("Expected committed read to share the image without copying")
	}
}
