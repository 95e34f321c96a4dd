package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"purikura/internal/relay"
)

// PipelineState はパイプラインのライフサイクル状態を表す
type PipelineState int32

const (
	// StateCreated はデバイスとフォーマットが束縛された未起動状態
	StateCreated PipelineState = iota
	// StateRunning はフレームを生産中の状態
	StateRunning
	// StateStopped はデバイス解放済みの終端状態。再起動はできない
	StateStopped
)

// runningPipelines はプロセス全体でRunning状態のパイプライン数を数える
// この値が1を超えることはあってはならない
var runningPipelines atomic.Int32

// RunningPipelines は現在Running状態のパイプライン数を返す
func RunningPipelines() int {
	return int(runningPipelines.Load())
}

// decoder は生フレームをRGBA画像へ変換する
type decoder func(raw []byte) (*image.RGBA, error)

// Pipeline は1つのデバイス・フォーマット対に束縛されたキャプチャセッションを所有する
//
// 起動すると2つのゴルーチンが動く：
//   - 取得ゴルーチン: デバイスのストリームをブロッキングで読み、単一スロットの
//     受信箱へ書き込む。スロットが未消費なら上書きする（鮮度優先）
//   - 処理ゴルーチン: 受信箱を待機付きで排出し、デコード・RGBA正規化・
//     オーバーレイ合成を行ってリレーへ発行する。表示側を待つことはない
//
// Stopは両ゴルーチンの終了を待ってからデバイスを解放して戻る。そのため
// デバイス切り替え時に古い取得コールバックが新しいパイプラインと競合することはない
type Pipeline struct {
	desc   Descriptor
	format FormatCapability

	backend    Backend
	compositor Compositor
	publisher  Publisher
	decode     decoder

	stream FrameStream
	state  atomic.Int32

	// 単一スロットの受信箱。新着は未消費フレームを上書きする
	inboxMu    sync.Mutex
	inboxCond  *sync.Cond
	inboxFrame []byte
	inboxDrops atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex // Start/Stopの直列化用
}

// NewPipeline は新しいPipelineを作成する
// 未対応のピクセルフォーマットはこの時点でErrPipelineStartとして拒否される
func NewPipeline(desc Descriptor, format FormatCapability, backend Backend, compositor Compositor, publisher Publisher) (*Pipeline, error) {
	dec, err := newDecoder(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPipelineStart, err)
	}

	p := &Pipeline{
		desc:       desc,
		format:     format,
		backend:    backend,
		compositor: compositor,
		publisher:  publisher,
		decode:     dec,
		stopCh:     make(chan struct{}),
	}
	p.inboxCond = sync.NewCond(&p.inboxMu)
	p.state.Store(int32(StateCreated))

	return p, nil
}

// newDecoder はフォーマットに応じたデコード段を構築する
// 圧縮フォーマットはデコード段を通し、生フォーマットは色空間変換のみ行う
func newDecoder(format FormatCapability) (decoder, error) {
	switch format.PixelFormat {
	case PixelFormatMJPG:
		return decodeJPEG, nil
	case PixelFormatYUYV:
		w, h := format.Width, format.Height
		return func(raw []byte) (*image.RGBA, error) {
			return decodeYUYV(raw, w, h)
		}, nil
	default:
		return nil, fmt.Errorf("未対応のピクセルフォーマット: %s", format.PixelFormat)
	}
}

// State は現在のライフサイクル状態を返す
func (p *Pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Format は束縛されたフォーマットを返す
func (p *Pipeline) Format() FormatCapability {
	return p.format
}

// Descriptor は束縛されたデバイスを返す
func (p *Pipeline) Descriptor() Descriptor {
	return p.desc
}

// InboxDrops は受信箱で上書き破棄された生フレーム数を返す
func (p *Pipeline) InboxDrops() uint64 {
	return p.inboxDrops.Load()
}

// Start はキャプチャセッションを起動する
//
// プロセス内に別のRunningパイプラインが存在する場合はErrDeviceBusyを返す
// （停止 → 構築 → 起動の順序を守らない呼び出しはプログラミング上の不変条件違反）
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateRunning:
		return fmt.Errorf("%w: パイプラインは既に起動済みです", ErrPipelineStart)
	case StateStopped:
		return fmt.Errorf("%w: 新しいパイプラインを構築してください", ErrPipelineStopped)
	}

	// Running数 0→1 の遷移に失敗したら先行パイプラインが解放されていない
	if !runningPipelines.CompareAndSwap(0, 1) {
		return ErrDeviceBusy
	}

	stream, err := p.backend.Open(ctx, p.desc, p.format)
	if err != nil {
		runningPipelines.Add(-1)
		return fmt.Errorf("%w: %v", ErrPipelineStart, err)
	}

	p.stream = stream
	p.state.Store(int32(StateRunning))

	p.wg.Add(2)
	go p.acquireLoop()
	go p.processLoop()

	return nil
}

// Stop はキャプチャセッションを停止する
//
// 処理ゴルーチンへ停止を通知し、ストリームを閉じて取得ゴルーチンを解放し、
// 両者の終了を待ってからデバイスを解放して戻る。冪等に呼び出せる
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != StateRunning {
		p.state.Store(int32(StateStopped))
		return nil
	}

	close(p.stopCh)

	// 処理ゴルーチンが受信箱の待機中でも停止を観測できるように起こす
	p.inboxCond.Broadcast()

	// ストリームを閉じるとハードウェア待ちの取得ゴルーチンも解放される
	if err := p.stream.Close(); err != nil {
		log.Printf("ストリームのクローズに失敗: %v", err)
	}

	p.wg.Wait()
	p.state.Store(int32(StateStopped))
	runningPipelines.Add(-1)

	return nil
}

// acquireLoop はデバイスのストリームを読み、受信箱へ書き込む（取得スレッド）
func (p *Pipeline) acquireLoop() {
	defer p.wg.Done()

	frames := p.stream.Frames()
	errs := p.stream.Errors()

	for {
		select {
		case <-p.stopCh:
			return

		case raw, ok := <-frames:
			if !ok {
				// ストリーム終了。処理側も起こして終わらせる
				p.inboxCond.Broadcast()
				return
			}
			p.depositFrame(raw)

		case err, ok := <-errs:
			if !ok {
				continue
			}
			log.Printf("カメラ %s の取得エラー: %v", p.desc.Device, err)
		}
	}
}

// depositFrame は生フレームを受信箱へ書き込む
// 未消費のフレームがあれば上書きする。完全性より鮮度を優先する
func (p *Pipeline) depositFrame(raw []byte) {
	p.inboxMu.Lock()
	if p.inboxFrame != nil {
		p.inboxDrops.Add(1)
	}
	p.inboxFrame = raw
	p.inboxCond.Signal()
	p.inboxMu.Unlock()
}

// processLoop は受信箱を排出し、合成してリレーへ発行する（処理スレッド）
func (p *Pipeline) processLoop() {
	defer p.wg.Done()

	for {
		raw := p.waitFrame()
		if raw == nil {
			return // 停止通知
		}

		frame, err := p.decode(raw)
		if err != nil {
			log.Printf("フレームのデコードに失敗: %v", err)
			continue
		}

		composited := &relay.Frame{Image: frame, Timestamp: time.Now()}
		if p.compositor != nil {
			composited = p.compositor.Apply(composited)
		}

		p.publisher.Publish(composited)
	}
}

// waitFrame は受信箱にフレームが届くか停止が通知されるまで待つ
func (p *Pipeline) waitFrame() []byte {
	p.inboxMu.Lock()
	defer p.inboxMu.Unlock()

	for p.inboxFrame == nil {
		if p.stopping() {
			return nil
		}
		p.inboxCond.Wait()
	}

	if p.stopping() {
		return nil
	}

	raw := p.inboxFrame
	p.inboxFrame = nil
	return raw
}

// stopping は停止通知済みかどうかを返す
func (p *Pipeline) stopping() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// decodeJPEG は圧縮フレームをデコードしてRGBAへ正規化する
func decodeJPEG(raw []byte) (*image.RGBA, error) {
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}

	// 色空間の正規化: デコーダ出力（通常YCbCr）をRGBAへ変換する
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba, nil
}

// decodeYUYV はパックドYUV 4:2:2の生フレームをRGBAへ変換する（BT.601）
func decodeYUYV(raw []byte, width, height int) (*image.RGBA, error) {
	expected := width * height * 2
	if len(raw) < expected {
		return nil, fmt.Errorf("YUYVフレームが不完全です: %dバイト (期待 %d)", len(raw), expected)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	pix := rgba.Pix

	// 2ピクセルごとに Y0 U Y1 V が並ぶ
	si := 0
	for di := 0; di+7 < len(pix) && si+3 < expected; di, si = di+8, si+4 {
		y0 := int(raw[si])
		u := int(raw[si+1]) - 128
		y1 := int(raw[si+2])
		v := int(raw[si+3]) - 128

		writeYUV(pix[di:di+4], y0, u, v)
		writeYUV(pix[di+4:di+8], y1, u, v)
	}

	return rgba, nil
}

// writeYUV は1ピクセル分のYUV値をRGBA 4バイトへ書き込む
func writeYUV(dst []byte, y, u, v int) {
	c := (y - 16) * 298
	dst[0] = clampU8((c + 409*v + 128) >> 8)
	dst[1] = clampU8((c - 100*u - 208*v + 128) >> 8)
	dst[2] = clampU8((c + 516*u + 128) >> 8)
	dst[3] = 255
}

// clampU8 は8bitチャンネルの有効範囲に丸める
func clampU8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
