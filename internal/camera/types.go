package camera

import (
	"context"
	"errors"
	"fmt"

	"purikura/internal/relay"
)

// BackendKind はキャプチャバックエンドの種別を表す
type BackendKind string

const (
	// BackendDefault は環境に応じた既定のバックエンドを表す
	BackendDefault BackendKind = "default"
	// BackendV4L2 はLinuxのV4L2デバイスを表す
	BackendV4L2 BackendKind = "v4l2"
	// BackendMock はテスト用のモックバックエンドを表す
	BackendMock BackendKind = "mock"
)

// PixelFormat はフレームデータのエンコーディングを表す
type PixelFormat string

const (
	// PixelFormatMJPG はフレーム単位のJPEG圧縮フォーマット
	PixelFormatMJPG PixelFormat = "MJPG"
	// PixelFormatYUYV はパックドYUV 4:2:2の生フォーマット
	PixelFormatYUYV PixelFormat = "YUYV"
)

// Compressed は圧縮フォーマットかどうかを返す
// 圧縮フォーマットはバス帯域が小さく、高解像度でも高フレームレートを出しやすい
func (p PixelFormat) Compressed() bool {
	return p == PixelFormatMJPG
}

// Descriptor は物理的に区別される1台のカメラを表す
// 一意性のキーはDeviceであり、Nameではない（表示名は衝突しうる）
type Descriptor struct {
	ID      string      // 一意識別子
	Name    string      // 表示名（例: "HD Webcam"）
	Device  string      // デバイスパス（例: /dev/video0）
	Backend BackendKind // バックエンド選択のヒント
}

// FormatCapability はデバイスが受け付ける1つのキャプチャフォーマットを表す
type FormatCapability struct {
	Width       int         // 画像幅
	Height      int         // 画像高さ
	PixelFormat PixelFormat // ピクセルフォーマット
	FPS         int         // フレームレート
}

// PixelCount は総ピクセル数を返す（ソートキー用）
func (f FormatCapability) PixelCount() int {
	return f.Width * f.Height
}

// String は "1920x1080 MJPG @30fps" 形式の文字列を返す
func (f FormatCapability) String() string {
	return fmt.Sprintf("%dx%d %s @%dfps", f.Width, f.Height, f.PixelFormat, f.FPS)
}

// Resolution は解像度を表す
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ListCameras はシステム内の利用可能なカメラを列挙する
	// カメラが1台も無いプラットフォームでもエラーにせず空を返す
	ListCameras(ctx context.Context) ([]Descriptor, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool
}

// FrameStream は起動済みキャプチャセッションからの生フレーム供給を表す
type FrameStream interface {
	// Frames は生フレームのチャンネルを返す。ストリーム終了時にクローズされる
	Frames() <-chan []byte

	// Errors はストリーム中に発生したエラーのチャンネルを返す
	Errors() <-chan error

	// Format はデバイスが実際に適用したフォーマットを返す
	// 要求値と異なる場合がある（デバイスは黙って近似値に丸める）
	Format() FormatCapability

	// Close はセッションを停止しデバイスハンドルを解放する
	Close() error
}

// Backend はキャプチャバックエンドの多態的な能力を表す
// Pipeline はDescriptorのヒントでバックエンドを選択する
type Backend interface {
	// Kind はバックエンド種別を返す
	Kind() BackendKind

	// Supports は指定デバイスを扱えるかを返す
	Supports(desc Descriptor) bool

	// Open はデバイスを指定フォーマットで開き、ストリームを返す
	Open(ctx context.Context, desc Descriptor, format FormatCapability) (FrameStream, error)
}

// Compositor は生フレームへのオーバーレイ合成を表す
type Compositor interface {
	Apply(frame *relay.Frame) *relay.Frame
}

// Publisher は合成済みフレームの発行先を表す
type Publisher interface {
	Publish(frame *relay.Frame)
}

// エラー定義
var (
	// ErrNoDeviceFound は列挙結果が空だったことを表す
	ErrNoDeviceFound = errors.New("カメラデバイスが見つかりません")

	// ErrPipelineStart はパイプラインの起動失敗を表す
	// デバイスオープン失敗・フォーマット拒否・デコーダ構築失敗を包含する
	ErrPipelineStart = errors.New("パイプラインの起動に失敗")

	// ErrDeviceBusy は旧パイプラインのハンドル解放前の起動試行を表す
	ErrDeviceBusy = errors.New("デバイスが解放されていません")

	// ErrPipelineStopped は停止済みパイプラインの再起動試行を表す
	ErrPipelineStopped = errors.New("パイプラインは停止済みです")
)
