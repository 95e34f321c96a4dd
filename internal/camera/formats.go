package camera

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"
)

// StandardResolutions は試行錯誤ネゴシエーションで確認する標準解像度の一覧
var StandardResolutions = []Resolution{
	{Width: 640, Height: 480},
	{Width: 800, Height: 600},
	{Width: 1024, Height: 768},
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
	{Width: 3840, Height: 2160},
}

// DefaultFormat はネゴシエーション不能時に使用する既定フォーマットを返す
func DefaultFormat() FormatCapability {
	return FormatCapability{Width: 640, Height: 480, PixelFormat: PixelFormatMJPG, FPS: 30}
}

// Negotiator はデバイスが実際に受け付けるフォーマットを判定する
//
// ドライバへの能力照会を優先し、使える結果が得られない場合は標準解像度の
// 試行錯誤にフォールバックする。試行では要求値と実値が一致した候補のみを
// 採用する（デバイスは未対応の解像度を黙って近似値に丸めるため）
type Negotiator struct {
	backend Backend

	// Preferred はユーザー指定の解像度。標準一覧に無くても必ず試行される
	Preferred *Resolution

	// PreferCompressed は解像度・フレームレートが同点のとき圧縮フォーマットを
	// 優先するかどうか。圧縮はバス帯域を抑え、高解像度で高フレームレートを出せる
	PreferCompressed bool
}

// NewNegotiator は新しいNegotiatorを作成する
func NewNegotiator(backend Backend) *Negotiator {
	return &Negotiator{
		backend:          backend,
		PreferCompressed: true,
	}
}

// ListFormats はデバイスが受け付けるフォーマット一覧を返す
//
// ピクセル数・フレームレートの昇順にソートされる。デバイスを開けない場合は
// 空を返す。呼び出し側は空を「既定フォーマットを使え」として扱うこと
func (n *Negotiator) ListFormats(ctx context.Context, desc Descriptor) ([]FormatCapability, error) {
	// まずドライバの能力照会を試みる
	formats := n.queryDriver(ctx, desc)

	// 照会結果が使えなければ試行錯誤にフォールバックする
	if len(formats) == 0 {
		formats = n.probeFormats(ctx, desc)
	}

	SortFormats(formats)
	return formats, nil
}

// formatLineRe は "[0]: 'MJPG' (Motion-JPEG, compressed)" 形式の行にマッチする
var formatLineRe = regexp.MustCompile(`\[\d+\]: '(\w{4})'`)

// sizeLineRe は "Size: Discrete 1920x1080" 形式の行にマッチする
var sizeLineRe = regexp.MustCompile(`Size: Discrete (\d+)x(\d+)`)

// intervalLineRe は "Interval: Discrete 0.033s (30.000 fps)" 形式の行にマッチする
var intervalLineRe = regexp.MustCompile(`\((\d+)\.\d+ fps\)`)

// queryDriver はv4l2-ctlでドライバの能力一覧を照会する
// コマンドが無い・出力が解釈できない場合は空を返す
func (n *Negotiator) queryDriver(ctx context.Context, desc Descriptor) []FormatCapability {
	if desc.Backend != BackendV4L2 && desc.Backend != BackendDefault {
		return nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "v4l2-ctl", "--device", desc.Device, "--list-formats-ext")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}

	var formats []FormatCapability
	seen := make(map[string]bool)
	var pixelFormat PixelFormat
	var width, height int

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)

		if m := formatLineRe.FindStringSubmatch(line); m != nil {
			switch m[1] {
			case string(PixelFormatMJPG):
				pixelFormat = PixelFormatMJPG
			case string(PixelFormatYUYV):
				pixelFormat = PixelFormatYUYV
			default:
				pixelFormat = "" // 未対応フォーマットの区間を読み飛ばす
			}
			continue
		}

		if m := sizeLineRe.FindStringSubmatch(line); m != nil {
			width = atoi(m[1])
			height = atoi(m[2])
			continue
		}

		if m := intervalLineRe.FindStringSubmatch(line); m != nil {
			if pixelFormat == "" || width == 0 || height == 0 {
				continue
			}
			fc := FormatCapability{
				Width:       width,
				Height:      height,
				PixelFormat: pixelFormat,
				FPS:         atoi(m[1]),
			}
			key := fc.String()
			if !seen[key] {
				seen[key] = true
				formats = append(formats, fc)
			}
		}
	}

	return formats
}

// probeFormats は標準解像度を1つずつ要求し、実値が一致したものだけを採用する
// ユーザー指定の解像度は標準一覧に無くても必ず試行に含める
func (n *Negotiator) probeFormats(ctx context.Context, desc Descriptor) []FormatCapability {
	candidates := make([]Resolution, 0, len(StandardResolutions)+1)
	candidates = append(candidates, StandardResolutions...)

	if n.Preferred != nil {
		found := false
		for _, r := range candidates {
			if r == *n.Preferred {
				found = true
				break
			}
		}
		if !found {
			candidates = append(candidates, *n.Preferred)
		}
	}

	var formats []FormatCapability
	for _, res := range candidates {
		select {
		case <-ctx.Done():
			return formats
		default:
		}

		requested := FormatCapability{
			Width:       res.Width,
			Height:      res.Height,
			PixelFormat: PixelFormatMJPG,
			FPS:         30,
		}

		stream, err := n.backend.Open(ctx, desc, requested)
		if err != nil {
			// デバイスを開けない候補はスキップ。発見済みの結果は維持する
			continue
		}

		actual := stream.Format()
		_ = stream.Close()

		// 黙って丸めるデバイスを弾く: 要求値と実値の一致のみ採用
		if actual.Width == requested.Width && actual.Height == requested.Height {
			formats = append(formats, actual)
		}
	}

	return formats
}

// BestFormat は一覧から最良のフォーマットを選択する
//
// ピクセル数・フレームレートの昇順で最大のものを選ぶ。解像度とフレームレートが
// 同点の場合、PreferCompressedが有効なら圧縮フォーマットを優先する
func (n *Negotiator) BestFormat(formats []FormatCapability) (FormatCapability, error) {
	if len(formats) == 0 {
		return FormatCapability{}, fmt.Errorf("選択可能なフォーマットがありません")
	}

	best := formats[0]
	for _, fc := range formats[1:] {
		switch {
		case fc.PixelCount() > best.PixelCount():
			best = fc
		case fc.PixelCount() == best.PixelCount() && fc.FPS > best.FPS:
			best = fc
		case fc.PixelCount() == best.PixelCount() && fc.FPS == best.FPS:
			if n.PreferCompressed && fc.PixelFormat.Compressed() && !best.PixelFormat.Compressed() {
				best = fc
			}
		}
	}

	return best, nil
}

// SortFormats はピクセル数・フレームレートの昇順にソートする
func SortFormats(formats []FormatCapability) {
	sort.SliceStable(formats, func(i, j int) bool {
		if formats[i].PixelCount() != formats[j].PixelCount() {
			return formats[i].PixelCount() < formats[j].PixelCount()
		}
		return formats[i].FPS < formats[j].FPS
	})
}

// atoi は正の10進数文字列を整数に変換する（正規表現で検証済みの入力専用）
func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
