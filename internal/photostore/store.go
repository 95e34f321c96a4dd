package photostore

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxPhotoSize はアップロードを受け付ける最大ファイルサイズ
const MaxPhotoSize = 16 * 1024 * 1024 // 16MB

// allowedExtensions は受け付ける拡張子の一覧
var allowedExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "webp": true,
}

// AllowedExtension は拡張子が受け付け可能かどうかを返す
func AllowedExtension(ext string) bool {
	return allowedExtensions[strings.ToLower(ext)]
}

// Metadata は1枚の写真のメタデータレコードを表す
type Metadata struct {
	ID               string     `json:"id"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"original_filename"`
	Timestamp        time.Time  `json:"timestamp"`
	FileSize         int64      `json:"file_size"`
	FilePath         string     `json:"file_path"`
	ContentType      string     `json:"content_type"`
	Title            string     `json:"title,omitempty"`
	Description      string     `json:"description,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	CameraUsed       string     `json:"camera_used,omitempty"`
	Resolution       string     `json:"resolution,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Fields はアップロード時・更新時に指定できる任意フィールド
type Fields struct {
	Title       string
	Description string
	Tags        []string
	CameraUsed  string
	Resolution  string
}

// ErrNotFound は指定IDの写真が存在しないことを表す
var ErrNotFound = fmt.Errorf("写真が見つかりません")

// Store はUUIDキー付きの写真・メタデータレコードを管理する
// 写真本体とメタデータJSONはそれぞれ専用ディレクトリに保存される
type Store struct {
	photoDir string
	metaDir  string
	mu       sync.RWMutex
}

// New は指定ベースディレクトリ配下にStoreを作成する
// ディレクトリは初回操作時に作成される
func New(baseDir string) *Store {
	return &Store{
		photoDir: filepath.Join(baseDir, "api_photos"),
		metaDir:  filepath.Join(baseDir, "photo_metadata"),
	}
}

// ensureDirs は保存先ディレクトリを作成する
func (s *Store) ensureDirs() error {
	if err := os.MkdirAll(s.photoDir, 0755); err != nil {
		return fmt.Errorf("写真ディレクトリの作成に失敗: %w", err)
	}
	if err := os.MkdirAll(s.metaDir, 0755); err != nil {
		return fmt.Errorf("メタデータディレクトリの作成に失敗: %w", err)
	}
	return nil
}

// Add は写真データを保存してメタデータレコードを作成する
func (s *Store) Add(data []byte, originalFilename string, fields Fields) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDirs(); err != nil {
		return nil, err
	}

	if len(data) > MaxPhotoSize {
		return nil, fmt.Errorf("ファイルサイズが上限を超えています: %dバイト", len(data))
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalFilename), "."))
	if !AllowedExtension(ext) {
		return nil, fmt.Errorf("受け付けられないファイル形式です: %s", ext)
	}

	photoID := uuid.New().String()
	filename := fmt.Sprintf("%s.%s", photoID, ext)
	path := filepath.Join(s.photoDir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("写真の保存に失敗: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	meta := &Metadata{
		ID:               photoID,
		Filename:         filename,
		OriginalFilename: originalFilename,
		Timestamp:        time.Now(),
		FileSize:         int64(len(data)),
		FilePath:         absPath,
		ContentType:      contentType,
		Title:            fields.Title,
		Description:      fields.Description,
		Tags:             fields.Tags,
		CameraUsed:       fields.CameraUsed,
		Resolution:       fields.Resolution,
	}

	if err := s.saveMetadata(meta); err != nil {
		return nil, err
	}

	return meta, nil
}

// Get は指定IDのメタデータを取得する
func (s *Store) Get(photoID string) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadMetadata(photoID)
}

// List は全写真のメタデータを新しい順に返す
func (s *Store) List() ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

// Update は指定IDのメタデータの更新可能フィールドを書き換える
func (s *Store) Update(photoID string, fields Fields) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMetadata(photoID)
	if err != nil {
		return nil, err
	}

	if fields.Title != "" {
		meta.Title = fields.Title
	}
	if fields.Description != "" {
		meta.Description = fields.Description
	}
	if fields.Tags != nil {
		meta.Tags = fields.Tags
	}

	now := time.Now()
	meta.UpdatedAt = &now

	if err := s.saveMetadata(meta); err != nil {
		return nil, err
	}

	return meta, nil
}

// Delete は写真本体とメタデータを削除する
func (s *Store) Delete(photoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMetadata(photoID)
	if err != nil {
		return err
	}

	if err := os.Remove(meta.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("写真ファイルの削除に失敗: %w", err)
	}

	metaPath := filepath.Join(s.metaDir, photoID+".json")
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("メタデータの削除に失敗: %w", err)
	}

	return nil
}

// Search はタイトル・説明・タグを部分一致で検索し、新しい順に返す
func (s *Store) Search(query string) ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.listLocked()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var matched []*Metadata
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) ||
			strings.Contains(strings.ToLower(meta.Description), query) {
			matched = append(matched, meta)
			continue
		}
		for _, tag := range meta.Tags {
			if strings.Contains(strings.ToLower(tag), query) {
				matched = append(matched, meta)
				break
			}
		}
	}

	return matched, nil
}

// listLocked は全メタデータを読み込む（ロック済み前提）
func (s *Store) listLocked() ([]*Metadata, error) {
	entries, err := os.ReadDir(s.metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Metadata{}, nil
		}
		return nil, fmt.Errorf("メタデータ一覧の取得に失敗: %w", err)
	}

	var photos []*Metadata
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		photoID := strings.TrimSuffix(entry.Name(), ".json")
		meta, err := s.loadMetadata(photoID)
		if err != nil {
			continue // 壊れたレコードは読み飛ばす
		}
		photos = append(photos, meta)
	}

	// 新しい順
	sort.Slice(photos, func(i, j int) bool {
		return photos[i].Timestamp.After(photos[j].Timestamp)
	})

	return photos, nil
}

// saveMetadata はメタデータをJSONサイドカーへ書き込む（ロック済み前提）
func (s *Store) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("メタデータのエンコードに失敗: %w", err)
	}

	path := filepath.Join(s.metaDir, meta.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("メタデータの保存に失敗: %w", err)
	}

	return nil
}

// loadMetadata はメタデータをJSONサイドカーから読み込む（ロック済み前提）
func (s *Store) loadMetadata(photoID string) (*Metadata, error) {
	path := filepath.Join(s.metaDir, photoID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("メタデータの読み込みに失敗: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("メタデータのデコードに失敗: %w", err)
	}

	return &meta, nil
}
