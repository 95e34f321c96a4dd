// Package session は撮影セッションの状態機械を担う
//
// UI・音声・HTTPの各トリガー源からの撮影要求を一本化し、カウントダウンから
// 撮影・保存・アップロードまでの一連の流れを制御する。デバイスやフォーマットの
// 切り替えはカウントダウンの進行に影響を与えない
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"purikura/internal/camera"
	"purikura/internal/relay"
)

// ErrNoFrameAvailable はパイプラインがまだ1フレームも生産していないことを表す
var ErrNoFrameAvailable = errors.New("撮影可能なフレームがありません")

// State はセッションの状態を表す
type State int32

const (
	// StateIdle はトリガー待ちの状態
	StateIdle State = iota
	// StateCountdownRunning はカウントダウン進行中の状態
	StateCountdownRunning
	// StateCapturing は確定フレームの取得・保存中の状態
	StateCapturing
)

// DefaultCountdownTicks は既定のカウントダウン数
const DefaultCountdownTicks = 3

// DefaultTickInterval は既定のカウントダウン間隔
const DefaultTickInterval = time.Second

// Ticker はカウントダウンの時間源を表す
// 本番ではtime.Tickerをラップし、テストでは手動でティックを送る
type Ticker interface {
	Ticks() <-chan time.Time
	Stop()
}

// TickerFactory はカウントダウン開始ごとにTickerを生成する
type TickerFactory func() Ticker

// intervalTicker はtime.Tickerをラップした実時間のTicker
type intervalTicker struct {
	t *time.Ticker
}

// NewIntervalTicker は実時間で刻むTickerを作成する
func NewIntervalTicker(interval time.Duration) Ticker {
	return &intervalTicker{t: time.NewTicker(interval)}
}

func (t *intervalTicker) Ticks() <-chan time.Time { return t.t.C }
func (t *intervalTicker) Stop()                   { t.t.Stop() }

// Persister は撮影したフレームの永続化先を表す
type Persister interface {
	Save(img image.Image, timestamp time.Time) (string, error)
}

// Uploader は保存済み写真の外部送信先を表す
type Uploader interface {
	Enabled() bool
	Upload(path string) error
}

// Overlays はオーバーレイの合成と切り替えを表す
type Overlays interface {
	camera.Compositor
	Next() error
	Prev() error
	Current() string
}

// Options はControllerの依存と設定をまとめる
type Options struct {
	Discovery camera.Discovery
	Backends  *camera.BackendRegistry
	Relay     *relay.FrameRelay
	Overlays  Overlays
	Snapshots Persister
	Uploader  Uploader

	// Preferred はネゴシエーションで必ず試行する解像度（任意）
	Preferred *camera.Resolution

	// PreferCompressed はネゴシエーションの同点判定で圧縮フォーマットを
	// 優先するかどうか
	PreferCompressed bool

	CountdownTicks int
	TickInterval   time.Duration
	NewTicker      TickerFactory

	// OnTick はカウントダウンの残り数を表示側へ通知する
	OnTick func(remaining int)
	// OnFlash は保存完了時のフラッシュ表示を通知する
	OnFlash func()
	// OnError は撮影経路で発生したエラーを通知する
	OnError func(error)
}

// Controller は撮影セッション全体を制御する
//
// 状態機械はIdle・CountdownRunning・Capturingの3状態を持ち、
// TriggerCaptureはIdleのときのみ受理される。これが複数トリガー源の
// 重複排除の唯一の仕組みである
type Controller struct {
	discovery camera.Discovery
	backends  *camera.BackendRegistry
	relay     *relay.FrameRelay
	overlays  Overlays
	snapshots Persister
	uploader  Uploader

	preferred        *camera.Resolution
	preferCompressed bool

	countdownTicks int
	newTicker      TickerFactory

	onTick  func(remaining int)
	onFlash func()
	onError func(error)

	// カウントダウン状態。パイプライン状態とは独立にロックする
	mu        sync.Mutex
	state     State
	remaining int

	// 現在のパイプラインと束縛先
	pipeMu   sync.Mutex
	pipeline *camera.Pipeline
	backend  camera.Backend
	desc     camera.Descriptor
	format   camera.FormatCapability

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewController は新しいControllerを作成する
func NewController(opts Options) *Controller {
	ticks := opts.CountdownTicks
	if ticks <= 0 {
		ticks = DefaultCountdownTicks
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	factory := opts.NewTicker
	if factory == nil {
		factory = func() Ticker { return NewIntervalTicker(interval) }
	}

	return &Controller{
		discovery:        opts.Discovery,
		backends:         opts.Backends,
		relay:            opts.Relay,
		overlays:         opts.Overlays,
		snapshots:        opts.Snapshots,
		uploader:         opts.Uploader,
		preferred:        opts.Preferred,
		preferCompressed: opts.PreferCompressed,
		countdownTicks:   ticks,
		newTicker:        factory,
		onTick:           opts.OnTick,
		onFlash:          opts.OnFlash,
		onError:          opts.OnError,
		state:            StateIdle,
		stopCh:           make(chan struct{}),
	}
}

// State は現在のセッション状態を返す
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining はカウントダウンの残り数を返す
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// CurrentDescriptor は現在束縛されているデバイスを返す
func (c *Controller) CurrentDescriptor() camera.Descriptor {
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()
	return c.desc
}

// CurrentFormat は現在束縛されているフォーマットを返す
func (c *Controller) CurrentFormat() camera.FormatCapability {
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()
	return c.format
}

// ListCameras は接続中のカメラ一覧を返す
func (c *Controller) ListCameras(ctx context.Context) ([]camera.Descriptor, error) {
	return c.discovery.ListCameras(ctx)
}

// ListFormats は現在のデバイスが受け付けるフォーマット一覧を返す
func (c *Controller) ListFormats(ctx context.Context) ([]camera.FormatCapability, error) {
	c.pipeMu.Lock()
	desc := c.desc
	backend := c.backend
	c.pipeMu.Unlock()

	if backend == nil {
		return nil, fmt.Errorf("デバイスが束縛されていません")
	}
	return c.negotiatorFor(backend).ListFormats(ctx, desc)
}

// Start は最初に見つかったカメラでキャプチャを開始する
func (c *Controller) Start(ctx context.Context) error {
	descs, err := c.discovery.ListCameras(ctx)
	if err != nil {
		return fmt.Errorf("カメラの列挙に失敗: %w", err)
	}
	if len(descs) == 0 {
		return camera.ErrNoDeviceFound
	}
	return c.bindDevice(ctx, descs[0])
}

// Stop はカウントダウンとパイプラインを停止する
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()

	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()

	if c.pipeline == nil {
		return nil
	}
	return c.pipeline.Stop()
}

// TriggerCapture は撮影カウントダウンを開始する
// Idle以外の状態では何もせずfalseを返す（連打・多重トリガーの重複排除）
func (c *Controller) TriggerCapture() bool {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false
	}
	c.state = StateCountdownRunning
	c.remaining = c.countdownTicks
	c.mu.Unlock()

	t := c.newTicker()
	c.wg.Add(1)
	go c.runCountdown(t)
	return true
}

// runCountdown はティックを消費してカウントダウンを進め、零で撮影する
// どの経路を通っても最後にIdleへ戻る
func (c *Controller) runCountdown(t Ticker) {
	defer c.wg.Done()
	defer t.Stop()

	for {
		select {
		case <-c.stopCh:
			c.setState(StateIdle)
			return
		case _, ok := <-t.Ticks():
			if !ok {
				c.setState(StateIdle)
				return
			}
		}

		c.mu.Lock()
		c.remaining--
		rem := c.remaining
		c.mu.Unlock()

		if c.onTick != nil {
			c.onTick(rem)
		}
		if rem <= 0 {
			break
		}
	}

	c.setState(StateCapturing)
	if err := c.captureOnce(); err != nil {
		log.Printf("撮影に失敗: %v", err)
		if c.onError != nil {
			c.onError(err)
		}
	}
	c.setState(StateIdle)
}

// setState はカウントダウン状態を更新する
func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// captureOnce は確定スロットの最新フレームを保存し、必要なら送信する
func (c *Controller) captureOnce() error {
	frame := c.relay.LatestCommitted()
	if frame == nil {
		return ErrNoFrameAvailable
	}

	path, err := c.snapshots.Save(frame.Image, frame.Timestamp)
	if err != nil {
		return fmt.Errorf("スナップショットの保存に失敗: %w", err)
	}
	log.Printf("写真を保存しました: %s", path)

	// アップロードは表示を止めないよう投げっぱなしで行う。失敗はログのみ
	if c.uploader != nil && c.uploader.Enabled() {
		go func() {
			if err := c.uploader.Upload(path); err != nil {
				log.Printf("写真のアップロードに失敗: %v", err)
			}
		}()
	}

	if c.onFlash != nil {
		c.onFlash()
	}
	return nil
}

// SwitchDevice は別のカメラへ切り替える
//
// フォーマットを再ネゴシエーションし、停止 → 構築 → 起動の順で移行する。
// 起動に失敗した場合は既定フォーマットで一度だけ再試行する。
// 進行中のカウントダウンとオーバーレイ選択には影響しない
func (c *Controller) SwitchDevice(ctx context.Context, device string) error {
	descs, err := c.discovery.ListCameras(ctx)
	if err != nil {
		return fmt.Errorf("カメラの列挙に失敗: %w", err)
	}

	for _, d := range descs {
		if d.Device == device || d.ID == device {
			return c.bindDevice(ctx, d)
		}
	}
	return fmt.Errorf("%w: %s", camera.ErrNoDeviceFound, device)
}

// SwitchFormat は現在のデバイスのまま別フォーマットへ切り替える
func (c *Controller) SwitchFormat(ctx context.Context, format camera.FormatCapability) error {
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()

	if c.backend == nil {
		return fmt.Errorf("デバイスが束縛されていません")
	}
	return c.restartLocked(ctx, c.desc, format, c.backend)
}

// bindDevice はデバイスのフォーマットをネゴシエーションしてパイプラインを移行する
func (c *Controller) bindDevice(ctx context.Context, desc camera.Descriptor) error {
	backend, err := c.backends.ForDescriptor(desc)
	if err != nil {
		return fmt.Errorf("バックエンドの選択に失敗: %w", err)
	}

	neg := c.negotiatorFor(backend)
	formats, err := neg.ListFormats(ctx, desc)
	if err != nil {
		return fmt.Errorf("フォーマットのネゴシエーションに失敗: %w", err)
	}

	// ネゴシエーション不能なデバイスは既定フォーマットで扱う
	format, err := neg.BestFormat(formats)
	if err != nil {
		format = camera.DefaultFormat()
	}

	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()
	return c.restartLocked(ctx, desc, format, backend)
}

// negotiatorFor はユーザー指定の解像度を組み込んだNegotiatorを作成する
func (c *Controller) negotiatorFor(backend camera.Backend) *camera.Negotiator {
	neg := camera.NewNegotiator(backend)
	neg.Preferred = c.preferred
	neg.PreferCompressed = c.preferCompressed
	return neg
}

// restartLocked は停止 → 構築 → 起動の順でパイプラインを移行する
// 起動に失敗した場合は既定フォーマットで一度だけ再試行し、それも失敗したら
// エラーを返す。pipeMuを保持して呼び出すこと
func (c *Controller) restartLocked(ctx context.Context, desc camera.Descriptor, format camera.FormatCapability, backend camera.Backend) error {
	if c.pipeline != nil {
		if err := c.pipeline.Stop(); err != nil {
			log.Printf("旧パイプラインの停止に失敗: %v", err)
		}
		c.pipeline = nil
	}

	startErr := c.startPipelineLocked(ctx, desc, format, backend)
	if startErr == nil {
		return nil
	}

	def := camera.DefaultFormat()
	if format == def {
		return startErr
	}

	log.Printf("フォーマット %s での起動に失敗、既定フォーマットで再試行します: %v", format, startErr)
	if retryErr := c.startPipelineLocked(ctx, desc, def, backend); retryErr != nil {
		return fmt.Errorf("既定フォーマットでの再試行にも失敗 (%v): %w", retryErr, startErr)
	}
	return nil
}

// startPipelineLocked は新しいパイプラインを構築して起動する
func (c *Controller) startPipelineLocked(ctx context.Context, desc camera.Descriptor, format camera.FormatCapability, backend camera.Backend) error {
	p, err := camera.NewPipeline(desc, format, backend, c.overlays, c.relay)
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}

	c.pipeline = p
	c.desc = desc
	c.format = format
	c.backend = backend
	log.Printf("カメラ %s (%s) でキャプチャを開始しました", desc.Device, format)
	return nil
}

// NextOverlay は次のオーバーレイへ切り替える
func (c *Controller) NextOverlay() error {
	return c.overlays.Next()
}

// PrevOverlay は前のオーバーレイへ切り替える
func (c *Controller) PrevOverlay() error {
	return c.overlays.Prev()
}

// CurrentOverlay は現在選択中のオーバーレイ名を返す
func (c *Controller) CurrentOverlay() string {
	return c.overlays.Current()
}
