package main

import (
	"context"
	"log"

	"purikura/internal/app"
	"purikura/internal/config"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// アプリケーションを構築して起動
	booth, err := app.New(cfg)
	if err != nil {
		log.Fatalf("アプリケーションの構築に失敗しました: %v", err)
	}

	ctx := context.Background()
	if err := booth.Run(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
