// Package server は、HTTPサーバーと撮影制御APIを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// 写真管理APIとMJPEGプレビューの配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - 撮影トリガー・デバイス切り替え・オーバーレイ切り替えの受け付け
//   - 写真のアップロード・検索・取得・削除API
//   - MJPEGプレビューストリームの配信
//
// 仕様:
//   - ルーティングはOpenAPI定義から生成されたコードを使用
//   - HTTPフレームワークはginを使用
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
package server
