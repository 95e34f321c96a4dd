package camera

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// V4L2Backend はffmpeg経由でV4L2デバイスからフレームを取得するバックエンド
type V4L2Backend struct{}

// NewV4L2Backend は新しいV4L2Backendを作成する
func NewV4L2Backend() Backend {
	return &V4L2Backend{}
}

// Kind はバックエンド種別を返す
func (b *V4L2Backend) Kind() BackendKind {
	return BackendV4L2
}

// Supports は指定デバイスを扱えるかを返す
func (b *V4L2Backend) Supports(desc Descriptor) bool {
	return desc.Backend == BackendV4L2 || desc.Backend == BackendDefault
}

// fmtWidthHeightRe は "Width/Height      : 1920/1080" 形式の行にマッチする
var fmtWidthHeightRe = regexp.MustCompile(`Width/Height\s*:\s*(\d+)/(\d+)`)

// fmtPixelRe は "Pixel Format      : 'MJPG'" 形式の行にマッチする
var fmtPixelRe = regexp.MustCompile(`Pixel Format\s*:\s*'(\w{4})'`)

// Open はデバイスを指定フォーマットで開き、フレームストリームを返す
//
// まずv4l2-ctlでフォーマットを設定して実値を読み戻す（デバイスは未対応の
// 要求を黙って近似値に丸めるため、実値の確認が必要）。その後ffmpegの
// ストリーミングプロセスを起動する
func (b *V4L2Backend) Open(ctx context.Context, desc Descriptor, format FormatCapability) (FrameStream, error) {
	actual := b.readbackFormat(ctx, desc.Device, format)

	streamCtx, cancel := context.WithCancel(ctx)
	stream := &v4l2Stream{
		device: desc.Device,
		actual: actual,
		frames: make(chan []byte, 1),
		errors: make(chan error, 5),
		cancel: cancel,
	}

	if err := stream.start(streamCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("デバイス %s のオープンに失敗: %w", desc.Device, err)
	}

	return stream, nil
}

// readbackFormat はフォーマットを設定して実際に適用された値を読み戻す
// v4l2-ctlが使えない環境では要求値をそのまま実値とみなす
func (b *V4L2Backend) readbackFormat(ctx context.Context, device string, format FormatCapability) FormatCapability {
	cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	setArg := fmt.Sprintf("--set-fmt-video=width=%d,height=%d,pixelformat=%s",
		format.Width, format.Height, format.PixelFormat)
	if err := exec.CommandContext(cmdCtx, "v4l2-ctl", "--device", device, setArg).Run(); err != nil {
		return format
	}

	output, err := exec.CommandContext(cmdCtx, "v4l2-ctl", "--device", device, "--get-fmt-video").Output()
	if err != nil {
		return format
	}

	actual := format
	if m := fmtWidthHeightRe.FindSubmatch(output); m != nil {
		actual.Width, _ = strconv.Atoi(string(m[1]))
		actual.Height, _ = strconv.Atoi(string(m[2]))
	}
	if m := fmtPixelRe.FindSubmatch(output); m != nil {
		actual.PixelFormat = PixelFormat(m[1])
	}

	return actual
}

// v4l2Stream はffmpegプロセスからのフレーム供給を表す
type v4l2Stream struct {
	device string
	actual FormatCapability
	frames chan []byte
	errors chan error
	cancel context.CancelFunc

	cmd       *exec.Cmd
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// start はffmpegを起動してフレーム読み取りゴルーチンを開始する
func (s *v4l2Stream) start(ctx context.Context) error {
	args := []string{
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", s.actual.Width, s.actual.Height),
		"-framerate", strconv.Itoa(s.actual.FPS),
	}

	// 圧縮フォーマットはJPEG連結で、生フォーマットは固定長チャンクで受け取る
	if s.actual.PixelFormat.Compressed() {
		args = append(args,
			"-input_format", "mjpeg",
			"-i", s.device,
			"-c:v", "copy",
			"-f", "image2pipe",
			"-",
		)
	} else {
		args = append(args,
			"-input_format", "yuyv422",
			"-i", s.device,
			"-f", "rawvideo",
			"-pix_fmt", "yuyv422",
			"-",
		)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}
	s.cmd = cmd

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.frames)
		defer func() {
			_ = cmd.Wait() // コンテキストキャンセル時のエラーは無視
		}()

		if s.actual.PixelFormat.Compressed() {
			s.readJPEGFrames(ctx, stdout)
		} else {
			s.readRawFrames(ctx, stdout)
		}
	}()

	return nil
}

// readJPEGFrames はJPEGマーカーでフレームを切り出して送出する
func (s *v4l2Stream) readJPEGFrames(ctx context.Context, stdout io.Reader) {
	buffer := make([]byte, 1024*1024)
	frameBuffer := bytes.Buffer{}

	for {
		n, err := stdout.Read(buffer)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				s.reportError(fmt.Errorf("フレーム読み取りエラー: %w", err))
			}
			return
		}

		frameBuffer.Write(buffer[:n])
		data := frameBuffer.Bytes()

		for {
			// JPEGの開始マーカー（FF D8）を探す
			startIdx := bytes.Index(data, []byte{0xFF, 0xD8})
			if startIdx == -1 {
				break
			}

			// JPEGの終了マーカー（FF D9）を探す
			endIdx := bytes.Index(data[startIdx+2:], []byte{0xFF, 0xD9})
			if endIdx == -1 {
				// 完全なフレームがまだない
				if startIdx > 0 {
					rest := data[startIdx:]
					frameBuffer.Reset()
					frameBuffer.Write(rest)
				}
				break
			}

			endIdx += startIdx + 2 + 2 // マーカー自体のサイズを含める
			frame := make([]byte, endIdx-startIdx)
			copy(frame, data[startIdx:endIdx])

			if !s.deliver(ctx, frame) {
				return
			}

			remaining := data[endIdx:]
			frameBuffer.Reset()
			frameBuffer.Write(remaining)
			data = frameBuffer.Bytes()
			if len(data) == 0 {
				break
			}
		}
	}
}

// readRawFrames は固定長のYUYVチャンクを読み取って送出する
func (s *v4l2Stream) readRawFrames(ctx context.Context, stdout io.Reader) {
	frameSize := s.actual.Width * s.actual.Height * 2 // YUYVは1ピクセル2バイト

	for {
		frame := make([]byte, frameSize)
		if _, err := io.ReadFull(stdout, frame); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF && ctx.Err() == nil {
				s.reportError(fmt.Errorf("フレーム読み取りエラー: %w", err))
			}
			return
		}

		if !s.deliver(ctx, frame) {
			return
		}
	}
}

// deliver はフレームをチャンネルへ送る。古い未読フレームは破棄する（最新優先）
func (s *v4l2Stream) deliver(ctx context.Context, frame []byte) bool {
	select {
	case s.frames <- frame:
		return true
	case <-ctx.Done():
		return false
	default:
	}

	// チャンネルがフルの場合は古いフレームを破棄して入れ直す
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// reportError はエラーを報告する。報告先がフルなら黙って捨てる
func (s *v4l2Stream) reportError(err error) {
	select {
	case s.errors <- err:
	default:
	}
}

// Frames は生フレームのチャンネルを返す
func (s *v4l2Stream) Frames() <-chan []byte {
	return s.frames
}

// Errors はエラーのチャンネルを返す
func (s *v4l2Stream) Errors() <-chan error {
	return s.errors
}

// Format はデバイスが実際に適用したフォーマットを返す
func (s *v4l2Stream) Format() FormatCapability {
	return s.actual
}

// Close はffmpegを停止しデバイスハンドルを解放する
// 読み取りゴルーチンの終了を待ってから戻る
func (s *v4l2Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// BackendRegistry はバックエンドの登録と選択を担う
// 選択はDescriptorのヒントに対するSupports判定で行い、文字列比較はしない
type BackendRegistry struct {
	backends []Backend
}

// NewBackendRegistry は指定バックエンドを持つレジストリを作成する
func NewBackendRegistry(backends ...Backend) *BackendRegistry {
	return &BackendRegistry{backends: backends}
}

// ForDescriptor はデバイスを扱えるバックエンドを返す
func (r *BackendRegistry) ForDescriptor(desc Descriptor) (Backend, error) {
	for _, b := range r.backends {
		if b.Supports(desc) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("デバイス %s を扱えるバックエンドがありません", desc.Device)
}

// MockBackend はテスト用のモックバックエンド
type MockBackend struct {
	mu sync.Mutex

	// OpenErr を設定するとOpenが常に失敗する
	OpenErr error

	// Clamp は要求フォーマットから実値への変換。未設定なら要求値=実値
	Clamp func(FormatCapability) FormatCapability

	streams []*MockStream
}

// NewMockBackend は新しいMockBackendを作成する
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Kind はバックエンド種別を返す
func (b *MockBackend) Kind() BackendKind {
	return BackendMock
}

// Supports はモックデバイスを扱えるかを返す
func (b *MockBackend) Supports(desc Descriptor) bool {
	return desc.Backend == BackendMock
}

// Open はモックストリームを作成して返す
func (b *MockBackend) Open(_ context.Context, _ Descriptor, format FormatCapability) (FrameStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.OpenErr != nil {
		return nil, b.OpenErr
	}

	actual := format
	if b.Clamp != nil {
		actual = b.Clamp(format)
	}

	stream := NewMockStream(actual)
	b.streams = append(b.streams, stream)
	return stream, nil
}

// Streams は作成済みのモックストリーム一覧を返す
func (b *MockBackend) Streams() []*MockStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]*MockStream, len(b.streams))
	copy(result, b.streams)
	return result
}

// LastStream は最後に作成されたモックストリームを返す
func (b *MockBackend) LastStream() *MockStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// MockStream はテストから任意のフレームを注入できるFrameStream実装
type MockStream struct {
	actual FormatCapability
	frames chan []byte
	errors chan error

	mu     sync.Mutex
	closed bool
}

// NewMockStream は新しいMockStreamを作成する
func NewMockStream(actual FormatCapability) *MockStream {
	return &MockStream{
		actual: actual,
		frames: make(chan []byte, 16),
		errors: make(chan error, 5),
	}
}

// Push はテスト用にフレームを注入する。クローズ済みならfalseを返す
func (s *MockStream) Push(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

// Frames は生フレームのチャンネルを返す
func (s *MockStream) Frames() <-chan []byte {
	return s.frames
}

// Errors はエラーのチャンネルを返す
func (s *MockStream) Errors() <-chan error {
	return s.errors
}

// Format は実際に適用されたフォーマットを返す
func (s *MockStream) Format() FormatCapability {
	return s.actual
}

// Close はストリームを停止する
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// Closed はクローズ済みかどうかを返す
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
