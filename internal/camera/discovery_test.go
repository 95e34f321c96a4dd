package camera

import (
	"context"
	"testing"
)

func TestMockDiscovery_ListCameras(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery([]string{"/dev/video0", "/dev/video2"})

	descs, err := discovery.ListCameras(ctx)
	if err != nil {
		t.Fatalf("ListCameras failed: %v", err)
	}

	if len(descs) != 2 {
		t.Fatalf("Expected 2 cameras, got %d", len(descs))
	}

	// 一意性のキーはデバイスパス
	if descs[0].Device != "/dev/video0" || descs[1].Device != "/dev/video2" {
		t.Errorf("Unexpected devices: %s, %s", descs[0].Device, descs[1].Device)
	}

	for _, desc := range descs {
		if desc.ID == "" {
			t.Error("Expected camera ID to be set")
		}
		if desc.Backend != BackendMock {
			t.Errorf("Expected mock backend hint, got %s", desc.Backend)
		}
	}
}

func TestMockDiscovery_Empty(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery(nil)

	// カメラが無くてもエラーにならない
	descs, err := discovery.ListCameras(ctx)
	if err != nil {
		t.Fatalf("ListCameras failed: %v", err)
	}
	if len(descs) != 0 {
		t.Errorf("Expected 0 cameras, got %d", len(descs))
	}
}

func TestMockDiscovery_AddRemove(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery([]string{"/dev/video0"})

	discovery.AddDevice("/dev/video1")
	discovery.AddDevice("/dev/video1") // 重複は無視される

	descs, _ := discovery.ListCameras(ctx)
	if len(descs) != 2 {
		t.Fatalf("Expected 2 cameras after add, got %d", len(descs))
	}

	if !discovery.IsDeviceAvailable(ctx, "/dev/video1") {
		t.Error("Expected /dev/video1 to be available")
	}

	discovery.RemoveDevice("/dev/video0")
	descs, _ = discovery.ListCameras(ctx)
	if len(descs) != 1 {
		t.Fatalf("Expected 1 camera after remove, got %d", len(descs))
	}
	if discovery.IsDeviceAvailable(ctx, "/dev/video0") {
		t.Error("Expected /dev/video0 to be unavailable after remove")
	}
}

func TestExtractDeviceNumber(t *testing.T) {
	if n := extractDeviceNumber("/dev/video12"); n != 12 {
		t.Errorf("Expected 12, got %d", n)
	}
	if n := extractDeviceNumber("/dev/null"); n != 0 {
		t.Errorf("Expected 0 for non-video path, got %d", n)
	}
}

func TestLinuxDiscovery_UnavailableDevice(t *testing.T) {
	ctx := context.Background()
	discovery := &LinuxDiscovery{}

	// 存在しないデバイスは利用不可
	if discovery.IsDeviceAvailable(ctx, "/dev/video99") {
		t.Error("Expected nonexistent device to be unavailable")
	}
}
