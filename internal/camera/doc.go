// Package camera カメラデバイスの検出・フォーマットネゴシエーション・フレーム取得を担う
//
// # 責務
// - カメラデバイスの列挙と表示名の取得
// - デバイスが実際に受け付ける(解像度, ピクセルフォーマット, フレームレート)の判定
// - キャプチャパイプラインの構築とライフサイクル管理
// - 取得スレッドと処理スレッドの間の単一スロット受け渡し
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 接続されたカメラを列挙して選択肢として提示したい
// - デバイスが黙って近似値に丸めるフォーマット要求を検証したい
// - ブロッキングするデバイス読み取りと合成処理を分離してフレームを配信したい
//
// # 仕様
// - Discovery: v4l2-ctlによる実名取得と、インデックス総当たりへのフォールバック
// - Negotiator: ドライバへの能力照会と、要求値==実値のみ採用する試行錯誤
// - Backend: デバイス種別ごとのストリーム実装（ヒントで選択、文字列比較はしない）
// - Pipeline: Created → Running → Stopped の一方向ライフサイクル
// - プロセス全体でRunning状態のPipelineは常に1つ以下
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とフォーマット照会に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: フレームストリームの取得に使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
