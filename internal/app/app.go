// Package app はフォトブース全体の組み立てと起動を担う
package app

import (
	"context"
	"fmt"
	"log"

	"purikura/internal/camera"
	"purikura/internal/config"
	"purikura/internal/overlay"
	"purikura/internal/photostore"
	"purikura/internal/relay"
	"purikura/internal/server"
	"purikura/internal/session"
	"purikura/internal/upload"
	"purikura/internal/voice"
)

// App はフォトブースの全コンポーネントを束ねる
type App struct {
	config  *config.Config
	session *session.Controller
	voice   *voice.Listener
	server  *server.Server
}

// New は設定から全コンポーネントを構築する
func New(cfg *config.Config) (*App, error) {
	frames := relay.New()
	flash := server.NewFlashSignal()

	overlays, err := overlay.NewManager(cfg.Booth.OverlayDir)
	if err != nil {
		return nil, fmt.Errorf("オーバーレイの読み込みに失敗: %w", err)
	}

	snapshots := photostore.NewSnapshotStore(cfg.Photo.Dir)
	store := photostore.New(cfg.Photo.Dir)
	uploader := upload.NewClient(cfg.Upload.Endpoint)

	var preferred *camera.Resolution
	if cfg.Camera.PreferredWidth > 0 {
		preferred = &camera.Resolution{
			Width:  cfg.Camera.PreferredWidth,
			Height: cfg.Camera.PreferredHeight,
		}
	}

	ctrl := session.NewController(session.Options{
		Discovery:        camera.NewLinuxDiscovery(),
		Backends:         camera.NewBackendRegistry(camera.NewV4L2Backend()),
		Relay:            frames,
		Overlays:         overlays,
		Snapshots:        snapshots,
		Uploader:         uploader,
		Preferred:        preferred,
		PreferCompressed: cfg.Camera.PreferCompressed,
		CountdownTicks:   cfg.Booth.CountdownTicks,
		TickInterval:     cfg.Booth.TickInterval,
		OnTick: func(remaining int) {
			log.Printf("カウントダウン: %d", remaining)
		},
		OnFlash: flash.Fire,
		OnError: func(err error) {
			log.Printf("撮影エラー: %v", err)
		},
	})

	a := &App{
		config:  cfg,
		session: ctrl,
	}

	if cfg.Voice.Enabled {
		a.voice = voice.NewListener(cfg.Voice.Command, cfg.Voice.Keyword, ctrl)
	}

	handler := server.NewBoothHandler(cfg, store, ctrl, frames, flash)
	a.server = server.New(cfg, handler)

	return a, nil
}

// Run はキャプチャと各トリガー源を起動し、HTTPサーバーの終了まで待つ
func (a *App) Run(ctx context.Context) error {
	// カメラが見つからなくてもAPIの提供は続ける
	if err := a.session.Start(ctx); err != nil {
		log.Printf("カメラの起動に失敗しました（APIのみで継続します）: %v", err)
	}
	defer func() {
		if err := a.session.Stop(); err != nil {
			log.Printf("セッションの停止に失敗: %v", err)
		}
	}()

	if a.voice != nil {
		if err := a.voice.Start(ctx); err != nil {
			log.Printf("音声トリガーの起動に失敗しました: %v", err)
		} else {
			defer a.voice.Stop()
		}
	}

	return a.server.Start(ctx)
}
