package relay

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Frame はパイプラインが生成する合成済みフレームを表す
// Image は発行後に変更してはならない（スロット間で参照共有されるため）
type Frame struct {
	Image     *image.RGBA // RGBA正規化済みのピクセルデータ
	Seq       uint64      // 単調増加するシーケンス番号
	Timestamp time.Time   // キャプチャ時刻
}

// Bounds はフレームの矩形を返す
func (f *Frame) Bounds() image.Rectangle {
	return f.Image.Bounds()
}

// FrameRelay は生産者と消費者の間の最新優先ハンドオフを提供する
//
// 2つの単一スロットを持つ：
//   - プレビュースロット: 表示ループが ConsumeLatest で読み取りクリアする
//   - 確定スロット: スナップショット経路が LatestCommitted でコピー読み取りする
//
// Publish は常に非ブロッキングで、未読のフレームを上書きする。
// 消費者が部分的に書き込まれたフレームを観測することはない
// （スロットの交換はポインタ代入のみで、ロック下で行われる）。
type FrameRelay struct {
	mu        sync.Mutex
	preview   *Frame // 未消費のプレビューフレーム（消費済みならnil）
	committed *Frame // 最後に発行されたフレーム（クリアされない）

	seq          atomic.Uint64 // 発行順に割り当てるシーケンス番号
	previewDrops atomic.Uint64 // 未消費のまま上書きされたプレビューフレーム数
}

// New は新しいFrameRelayを作成する
func New() *FrameRelay {
	return &FrameRelay{}
}

// Publish はフレームを両スロットに発行する
// 非ブロッキングで、未消費のフレームは破棄される（最新優先）
func (r *FrameRelay) Publish(frame *Frame) {
	frame.Seq = r.seq.Add(1)

	r.mu.Lock()
	if r.preview != nil {
		// 表示ループが追いついていない。古いフレームを捨てる
		r.previewDrops.Add(1)
	}
	r.preview = frame
	r.committed = frame
	r.mu.Unlock()
}

// ConsumeLatest はプレビュースロットから最新フレームを取り出す
// 前回の消費以降に新しいフレームが発行されていなければnilを返す
func (r *FrameRelay) ConsumeLatest() *Frame {
	r.mu.Lock()
	frame := r.preview
	r.preview = nil
	r.mu.Unlock()
	return frame
}

// LatestCommitted は確定スロットの最新フレームを返す
// 一度も発行されていなければnilを返す。プレビューの消費状況とは独立している
func (r *FrameRelay) LatestCommitted() *Frame {
	r.mu.Lock()
	frame := r.committed
	r.mu.Unlock()
	return frame
}

// PreviewDrops は未消費のまま上書きされたプレビューフレーム数を返す
func (r *FrameRelay) PreviewDrops() uint64 {
	return r.previewDrops.Load()
}

// Published は発行済みフレームの総数を返す
func (r *FrameRelay) Published() uint64 {
	return r.seq.Load()
}
