// Package photostore は撮影写真の永続化とメタデータ管理を担う
//
// # 責務
// - ブース撮影のスナップショット保存（タイムスタンプ由来のファイル名）
// - アップロードAPI用のUUIDキー付き写真・メタデータレコードの管理
// - メタデータのJSONサイドカーファイルへの永続化
package photostore

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// SnapshotStore はブース撮影のスナップショットをディスクへ保存する
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore は指定ディレクトリへ保存するSnapshotStoreを作成する
// ディレクトリは初回保存時に作成される
func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

// Dir は保存先ディレクトリを返す
func (s *SnapshotStore) Dir() string {
	return s.dir
}

// Save はフレームを photo_<YYYYMMDD_HHMMSS>.png として保存しパスを返す
func (s *SnapshotStore) Save(img image.Image, timestamp time.Time) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("写真ディレクトリの作成に失敗: %w", err)
	}

	filename := fmt.Sprintf("photo_%s.png", timestamp.Format("20060102_150405"))
	path := filepath.Join(s.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("写真ファイルの作成に失敗: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("PNGエンコードに失敗: %w", err)
	}

	return path, nil
}
