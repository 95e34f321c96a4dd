package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxProbeDevices はフォールバック総当たりで確認するデバイス番号の上限
const maxProbeDevices = 10

// deviceNumberRe はデバイスパスから番号を抽出する
var deviceNumberRe = regexp.MustCompile(`video(\d+)`)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct{}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() Discovery {
	return &LinuxDiscovery{}
}

// ListCameras はシステム内の利用可能なカメラを列挙する
//
// v4l2-ctl --list-devices で実名付きの列挙を試み、コマンドが無い・失敗した
// 場合は /dev/video0 から上限までの総当たりにフォールバックする。
// 途中で失敗してもそこまでに発見したカメラを返す（列挙失敗は致命的ではない）
func (d *LinuxDiscovery) ListCameras(ctx context.Context) ([]Descriptor, error) {
	if descs, err := d.listByName(ctx); err == nil && len(descs) > 0 {
		return descs, nil
	}

	// フォールバック: インデックス総当たり
	return d.probeIndices(ctx), nil
}

// listByName はv4l2-ctlの出力から表示名付きでカメラを列挙する
//
// 出力形式:
//
//	HD Webcam (usb-0000:00:14.0-1):
//	        /dev/video0
//	        /dev/video1
func (d *LinuxDiscovery) listByName(ctx context.Context) ([]Descriptor, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "v4l2-ctl", "--list-devices")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("デバイス一覧の取得に失敗: %w", err)
	}

	var descs []Descriptor
	seen := make(map[string]bool) // 一意性はデバイスパスで判定する
	currentName := ""

	for _, line := range strings.Split(string(output), "\n") {
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "\t") && !strings.HasPrefix(line, " ") {
			// インデントなしの行はカメラ名。"HD Webcam (usb-...):" から名前部分を取る
			name := strings.TrimSuffix(strings.TrimSpace(line), ":")
			if idx := strings.Index(name, " ("); idx > 0 {
				name = name[:idx]
			}
			currentName = name
			continue
		}

		device := strings.TrimSpace(line)
		if !strings.HasPrefix(device, "/dev/video") || seen[device] {
			continue
		}

		// 開いてすぐ解放し、実際に利用可能なデバイスのみを採用する
		if !d.IsDeviceAvailable(ctx, device) {
			continue
		}

		name := currentName
		if name == "" {
			name = fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
		}

		seen[device] = true
		descs = append(descs, Descriptor{
			ID:      uuid.New().String(),
			Name:    name,
			Device:  device,
			Backend: BackendV4L2,
		})
	}

	sortByDeviceNumber(descs)
	return descs, nil
}

// probeIndices は総当たりでデバイスを探す
// 上限個数までの各インデックスを開いてすぐ解放し、成功したものだけを返す
func (d *LinuxDiscovery) probeIndices(ctx context.Context) []Descriptor {
	var descs []Descriptor

	for i := 0; i < maxProbeDevices; i++ {
		select {
		case <-ctx.Done():
			// キャンセルされたらそこまでの結果を返す
			return descs
		default:
		}

		device := fmt.Sprintf("/dev/video%d", i)
		if !d.IsDeviceAvailable(ctx, device) {
			continue
		}

		descs = append(descs, Descriptor{
			ID:      uuid.New().String(),
			Name:    fmt.Sprintf("カメラ %d", i),
			Device:  device,
			Backend: BackendV4L2,
		})
	}

	return descs
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
// デバイスファイルを開いてすぐ閉じる。ハンドルは保持しない
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if _, err := os.Stat(device); os.IsNotExist(err) {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer func() {
		_ = file.Close()
	}()

	matched, _ := regexp.MatchString(`^/dev/video\d+$`, device)
	return matched
}

// sortByDeviceNumber はデバイス番号の昇順にソートする
func sortByDeviceNumber(descs []Descriptor) {
	sort.Slice(descs, func(i, j int) bool {
		return extractDeviceNumber(descs[i].Device) < extractDeviceNumber(descs[j].Device)
	})
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberRe.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num := 0
	for _, c := range matches[1] {
		num = num*10 + int(c-'0')
	}
	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	descs []Descriptor
}

// NewMockDiscovery は指定デバイスパスを持つMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{}
	for i, device := range devices {
		m.descs = append(m.descs, Descriptor{
			ID:      uuid.New().String(),
			Name:    fmt.Sprintf("テストカメラ %d", i+1),
			Device:  device,
			Backend: BackendMock,
		})
	}
	return m
}

// ListCameras はモックカメラ一覧を返す
func (m *MockDiscovery) ListCameras(_ context.Context) ([]Descriptor, error) {
	result := make([]Descriptor, len(m.descs))
	copy(result, m.descs)
	return result, nil
}

// IsDeviceAvailable はモックデバイスが登録済みかチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	for _, desc := range m.descs {
		if desc.Device == device {
			return true
		}
	}
	return false
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	for _, desc := range m.descs {
		if desc.Device == device {
			return
		}
	}
	m.descs = append(m.descs, Descriptor{
		ID:      uuid.New().String(),
		Name:    fmt.Sprintf("テストカメラ %d", len(m.descs)+1),
		Device:  device,
		Backend: BackendMock,
	})
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	for i, desc := range m.descs {
		if desc.Device == device {
			m.descs = append(m.descs[:i], m.descs[i+1:]...)
			return
		}
	}
}
