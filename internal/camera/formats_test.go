package camera

import (
	"context"
	"testing"
)

func TestNegotiator_ProbeAcceptsOnlyExactMatches(t *testing.T) {
	ctx := context.Background()

	// 640x480と1920x1080は要求通り、それ以外は近似値に丸めるデバイス
	backend := NewMockBackend()
	backend.Clamp = func(requested FormatCapability) FormatCapability {
		switch {
		case requested.Width == 640 && requested.Height == 480:
			return requested
		case requested.Width == 1920 && requested.Height == 1080:
			return requested
		default:
			// デバイスが黙って丸める挙動を再現
			requested.Width = 1920
			requested.Height = 1080
			return requested
		}
	}

	n := NewNegotiator(backend)
	desc := Descriptor{ID: "cam-1", Name: "テストカメラ", Device: "/dev/mock0", Backend: BackendMock}

	formats, err := n.ListFormats(ctx, desc)
	if err != nil {
		t.Fatalf("ListFormats failed: %v", err)
	}

	if len(formats) != 2 {
		t.Fatalf("Expected exactly 2 formats, got %d: %v", len(formats), formats)
	}

	// ピクセル数の昇順
	if formats[0].Width != 640 || formats[0].Height != 480 {
		t.Errorf("Expected 640x480 first, got %s", formats[0])
	}
	if formats[1].Width != 1920 || formats[1].Height != 1080 {
		t.Errorf("Expected 1920x1080 second, got %s", formats[1])
	}

	// 試行で開いたストリームはすべて解放されていること
	for i, stream := range backend.Streams() {
		if !stream.Closed() {
			t.Errorf("Probe stream %d was left open", i)
		}
	}
}

func TestNegotiator_PreferredResolutionAlwaysProbed(t *testing.T) {
	ctx := context.Background()

	// 標準一覧に無い独自解像度のみを受け付けるデバイス
	backend := NewMockBackend()
	backend.Clamp = func(requested FormatCapability) FormatCapability {
		if requested.Width == 1600 && requested.Height == 900 {
			return requested
		}
		requested.Width = 1600
		requested.Height = 900
		return requested
	}

	n := NewNegotiator(backend)
	n.Preferred = &Resolution{Width: 1600, Height: 900}
	desc := Descriptor{Device: "/dev/mock0", Backend: BackendMock}

	formats, err := n.ListFormats(ctx, desc)
	if err != nil {
		t.Fatalf("ListFormats failed: %v", err)
	}

	if len(formats) != 1 {
		t.Fatalf("Expected 1 format, got %d", len(formats))
	}
	if formats[0].Width != 1600 || formats[0].Height != 900 {
		t.Errorf("Expected the preferred 1600x900 to be probed, got %s", formats[0])
	}
}

func TestNegotiator_OpenFailureReturnsEmpty(t *testing.T) {
	ctx := context.Background()

	backend := NewMockBackend()
	backend.OpenErr = ErrDeviceBusy

	n := NewNegotiator(backend)
	desc := Descriptor{Device: "/dev/mock0", Backend: BackendMock}

	formats, err := n.ListFormats(ctx, desc)
	if err != nil {
		t.Fatalf("ListFormats should not fail hard: %v", err)
	}
	if len(formats) != 0 {
		t.Errorf("Expected empty format list for unopenable device, got %d", len(formats))
	}
}

func TestNegotiator_BestFormat(t *testing.T) {
	n := NewNegotiator(NewMockBackend())

	formats := []FormatCapability{
		{Width: 640, Height: 480, PixelFormat: PixelFormatMJPG, FPS: 30},
		{Width: 1920, Height: 1080, PixelFormat: PixelFormatYUYV, FPS: 30},
		{Width: 1920, Height: 1080, PixelFormat: PixelFormatMJPG, FPS: 30},
		{Width: 1280, Height: 720, PixelFormat: PixelFormatMJPG, FPS: 60},
	}

	best, err := n.BestFormat(formats)
	if err != nil {
		t.Fatalf("BestFormat failed: %v", err)
	}

	// 最大解像度、同点なら圧縮フォーマット優先
	if best.Width != 1920 || best.Height != 1080 {
		t.Errorf("Expected 1920x1080, got %s", best)
	}
	if best.PixelFormat != PixelFormatMJPG {
		t.Errorf("Expected compressed tie-break to MJPG, got %s", best.PixelFormat)
	}

	// ポリシー無効時は先勝ち
	n.PreferCompressed = false
	best, err = n.BestFormat(formats)
	if err != nil {
		t.Fatalf("BestFormat failed: %v", err)
	}
	if best.PixelFormat != PixelFormatYUYV {
		t.Errorf("Expected first-wins without compressed preference, got %s", best.PixelFormat)
	}
}

func TestNegotiator_BestFormatEmpty(t *testing.T) {
	n := NewNegotiator(NewMockBackend())
	if _, err := n.BestFormat(nil); err == nil {
		t.Error("Expected error for empty format list")
	}
}

func TestSortFormats(t *testing.T) {
	formats := []FormatCapability{
		{Width: 1920, Height: 1080, FPS: 30},
		{Width: 640, Height: 480, FPS: 60},
		{Width: 640, Height: 480, FPS: 30},
		{Width: 1280, Height: 720, FPS: 30},
	}

	SortFormats(formats)

	expected := []FormatCapability{
		{Width: 640, Height: 480, FPS: 30},
		{Width: 640, Height: 480, FPS: 60},
		{Width: 1280, Height: 720, FPS: 30},
		{Width: 1920, Height: 1080, FPS: 30},
	}
	for i := range expected {
		if formats[i] != expected[i] {
			t.Errorf("Position %d: expected %s, got %s", i, expected[i], formats[i])
		}
	}
}
