// Package overlay はライブフレームへの装飾画像の合成を担う
//
// # 責務
// - オーバーレイ画像（PNG）の読み込みと切り替え管理
// - フレーム解像度に合わせたリサイズ結果のキャッシュ
// - アルファ合成によるフレームへの焼き込み
//
// # 仕様
// - リサイズキャッシュは（オーバーレイ, 解像度）の組ごとに最大1回だけ再計算される
// - オーバーレイ未選択時は入力フレームをコピーなしでそのまま返す
// - 合成はパイプラインのフレームレートで動作する前提（定常状態での割り当てなし）
package overlay

import (
	"fmt"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"purikura/internal/relay"
)

// Manager はオーバーレイ画像の選択と合成を管理する
type Manager struct {
	mu    sync.Mutex
	files []string // 利用可能なオーバーレイファイル（名前順）
	index int      // 現在選択中のインデックス
	none  bool     // オーバーレイ無し状態

	// 現在のオーバーレイの元画像（選択時に一度だけ読み込む）
	source *image.NRGBA

	// リサイズキャッシュ。オーバーレイ切り替えか解像度変更で無効化される
	cached      *image.NRGBA
	cachedW     int
	cachedH     int
	recomputes  atomic.Uint64 // リサイズ再計算回数（テスト検証用）
	scaler      draw.Scaler
}

// NewManager は指定ディレクトリのPNGを読み込んでManagerを作成する
// ディレクトリが存在しない、またはPNGが無い場合はオーバーレイ無しで動作する
func NewManager(dir string) (*Manager, error) {
	m := &Manager{
		none:   true,
		scaler: draw.ApproxBiLinear,
	}

	if dir == "" {
		return m, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return nil, fmt.Errorf("オーバーレイディレクトリのスキャンに失敗: %w", err)
	}
	if len(files) == 0 {
		return m, nil
	}

	sort.Strings(files)
	m.files = files
	m.none = false

	// 元実装と同じく、起動時はランダムなオーバーレイから始める
	m.index = rand.Intn(len(files))
	if err := m.loadCurrentLocked(); err != nil {
		return nil, err
	}

	return m, nil
}

// Current は現在のオーバーレイファイル名を返す（未選択なら空文字列）
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.none || len(m.files) == 0 {
		return ""
	}
	return filepath.Base(m.files[m.index])
}

// Next は次のオーバーレイに切り替える
func (m *Manager) Next() error {
	return m.cycle(1)
}

// Prev は前のオーバーレイに切り替える
func (m *Manager) Prev() error {
	return m.cycle(-1)
}

// cycle はオーバーレイを前後に切り替え、リサイズキャッシュを無効化する
func (m *Manager) cycle(step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.files) == 0 {
		return nil
	}

	m.index = (m.index + step + len(m.files)) % len(m.files)
	if err := m.loadCurrentLocked(); err != nil {
		return err
	}

	return nil
}

// loadCurrentLocked は現在のインデックスのオーバーレイを読み込む（ロック済み前提）
func (m *Manager) loadCurrentLocked() error {
	path := m.files[m.index]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("オーバーレイの読み込みに失敗: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	img, err := png.Decode(f)
	if err != nil {
		return fmt.Errorf("オーバーレイのデコードに失敗 (%s): %w", filepath.Base(path), err)
	}

	// アルファを保持したままNRGBAに正規化する
	bounds := img.Bounds()
	src := image.NewNRGBA(bounds)
	draw.Draw(src, bounds, img, bounds.Min, draw.Src)

	m.source = src
	m.none = false

	// 元画像が変わったのでキャッシュを破棄する
	m.cached = nil
	m.cachedW = 0
	m.cachedH = 0

	return nil
}

// resizedLocked はフレーム解像度に合わせたオーバーレイを返す（ロック済み前提）
// 同じ解像度での連続呼び出しではキャッシュを返し、再計算しない
func (m *Manager) resizedLocked(w, h int) *image.NRGBA {
	if m.cached != nil && m.cachedW == w && m.cachedH == h {
		return m.cached
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	m.scaler.Scale(dst, dst.Bounds(), m.source, m.source.Bounds(), draw.Over, nil)

	m.cached = dst
	m.cachedW = w
	m.cachedH = h
	m.recomputes.Add(1)

	return dst
}

// Apply はフレームにオーバーレイをアルファ合成する
// オーバーレイ未選択時は入力をそのまま返す。合成はフレームのバッファ内で行われる
func (m *Manager) Apply(frame *relay.Frame) *relay.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.none || m.source == nil {
		return frame
	}

	bounds := frame.Image.Bounds()
	ov := m.resizedLocked(bounds.Dx(), bounds.Dy())

	// output = background*(1-alpha) + overlay*alpha
	// 各チャンネル8bit、丸めあり。アルファ255/0は分岐で済ませる
	bg := frame.Image.Pix
	fg := ov.Pix
	for i := 0; i+3 < len(bg) && i+3 < len(fg); i += 4 {
		a := uint32(fg[i+3])
		switch a {
		case 0:
			continue
		case 255:
			bg[i] = fg[i]
			bg[i+1] = fg[i+1]
			bg[i+2] = fg[i+2]
		default:
			inv := 255 - a
			bg[i] = uint8((uint32(bg[i])*inv + uint32(fg[i])*a + 127) / 255)
			bg[i+1] = uint8((uint32(bg[i+1])*inv + uint32(fg[i+1])*a + 127) / 255)
			bg[i+2] = uint8((uint32(bg[i+2])*inv + uint32(fg[i+2])*a + 127) / 255)
		}
	}

	return frame
}

// RecomputeCount はリサイズキャッシュの再計算回数を返す
func (m *Manager) RecomputeCount() uint64 {
	return m.recomputes.Load()
}

// Count は利用可能なオーバーレイ数を返す
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
