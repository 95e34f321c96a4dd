// Package config はアプリケーション全体の設定を管理します
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Booth  BoothConfig  `yaml:"booth"`
	Photo  PhotoConfig  `yaml:"photo"`
	Upload UploadConfig `yaml:"upload"`
	Voice  VoiceConfig  `yaml:"voice"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	// ネゴシエーションで必ず試行する解像度（0なら標準一覧のみ）
	PreferredWidth  int `yaml:"preferred_width"`
	PreferredHeight int `yaml:"preferred_height"`

	// 同点時に圧縮フォーマットを優先するか
	PreferCompressed bool `yaml:"prefer_compressed"`
}

// BoothConfig は撮影セッションの設定
type BoothConfig struct {
	CountdownTicks int           `yaml:"countdown_ticks"` // カウントダウン数
	TickInterval   time.Duration `yaml:"tick_interval"`   // ティック間隔
	OverlayDir     string        `yaml:"overlay_dir"`     // オーバーレイPNGの配置ディレクトリ
}

// PhotoConfig は写真保存の設定
type PhotoConfig struct {
	Dir string `yaml:"dir"` // 写真とメタデータの保存先ベースディレクトリ
}

// UploadConfig は外部フォトブースサーバーへの送信設定
type UploadConfig struct {
	Endpoint string `yaml:"endpoint"` // 空なら送信しない
}

// VoiceConfig は音声トリガーの設定
type VoiceConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command []string `yaml:"command"` // 転写テキストをstdoutへ出すコマンド
	Keyword string   `yaml:"keyword"`
}

// Load は設定を読み込む
//
// PURIKURA_CONFIGで指定されたYAMLファイルを既定値に重ね、
// さらに環境変数による上書きを適用する
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("PURIKURA_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// LoadFile は指定されたYAMLファイルから設定を読み込む
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}
	return cfg, nil
}

// defaultConfig は既定の設定を作成する
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			PreferCompressed: true,
		},
		Booth: BoothConfig{
			CountdownTicks: 3,
			TickInterval:   time.Second,
			OverlayDir:     "overlays",
		},
		Photo: PhotoConfig{
			Dir: "photos",
		},
		Voice: VoiceConfig{
			Keyword: "smile",
		},
	}
}

// loadFile はYAMLファイルの内容を設定に重ねる
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	return nil
}

// applyEnv は環境変数による上書きを適用する
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Upload.Endpoint = getEnvOrDefault("PHOTOBOOTH_URL", c.Upload.Endpoint)
	c.Booth.OverlayDir = getEnvOrDefault("CUSTOM_OVERLAY_DIR", c.Booth.OverlayDir)
	c.Photo.Dir = getEnvOrDefault("PURIKURA_PHOTO_DIR", c.Photo.Dir)
	c.Voice.Enabled = getEnvAsBoolOrDefault("VOICE_ENABLED", c.Voice.Enabled)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	if c.Booth.CountdownTicks < 1 {
		return fmt.Errorf("無効なカウントダウン数: %d", c.Booth.CountdownTicks)
	}
	if c.Booth.TickInterval <= 0 {
		return fmt.Errorf("無効なティック間隔: %v", c.Booth.TickInterval)
	}

	// 解像度指定は両方揃っているか、両方無指定か
	if (c.Camera.PreferredWidth == 0) != (c.Camera.PreferredHeight == 0) {
		return fmt.Errorf("解像度指定が不完全です: %dx%d", c.Camera.PreferredWidth, c.Camera.PreferredHeight)
	}

	if c.Voice.Enabled && len(c.Voice.Command) == 0 {
		return fmt.Errorf("音声トリガーが有効ですがコマンドが未設定です")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault は環境変数を真偽値として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "True", "TRUE", "yes", "on":
		return true
	case "0", "false", "False", "FALSE", "no", "off":
		return false
	default:
		return defaultValue
	}
}
