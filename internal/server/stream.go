package server

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"purikura/internal/relay"

	"github.com/gin-gonic/gin"
)

// previewInterval はプレビュー配信の周期（約20fps）
const previewInterval = 50 * time.Millisecond

// previewQuality はプレビューJPEGの品質
const previewQuality = 80

// FlashSignal は撮影完了のフラッシュ表示をプレビュー側へ伝える
// セッション側がFireで立て、プレビューストリームが消費する
type FlashSignal struct {
	pending atomic.Bool
}

// NewFlashSignal は新しいFlashSignalを作成する
func NewFlashSignal() *FlashSignal {
	return &FlashSignal{}
}

// Fire はフラッシュ表示を要求する
func (f *FlashSignal) Fire() {
	f.pending.Store(true)
}

// consume は未消費のフラッシュ要求を取り出す
func (f *FlashSignal) consume() bool {
	return f.pending.Swap(false)
}

// GetPreviewStream はMJPEGプレビュー配信エンドポイントの実装
//
// 一定周期でリレーのプレビュースロットを消費して配信する。新しいフレームが
// なければその周期は何も送らない。フラッシュ要求があれば白フレームを1枚挟む
func (h *BoothHandler) GetPreviewStream(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(previewInterval)
	defer ticker.Stop()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case <-ticker.C:
			payload := h.nextPreviewFrame()
			if payload == nil {
				continue
			}

			if err := writeMJPEGPart(writer, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// nextPreviewFrame は次に配信するJPEGフレームを返す
// 配信するものがなければnilを返す
func (h *BoothHandler) nextPreviewFrame() []byte {
	// フラッシュ要求があれば白フレームを優先する
	if h.flash != nil && h.flash.consume() {
		return encodePreviewJPEG(flashFrame(h.relay.LatestCommitted()))
	}

	frame := h.relay.ConsumeLatest()
	if frame == nil {
		return nil
	}
	return encodePreviewJPEG(frame.Image)
}

// flashFrame は直近のフレームと同じ寸法の白フレームを作る
func flashFrame(last *relay.Frame) image.Image {
	bounds := image.Rect(0, 0, 640, 480)
	if last != nil {
		bounds = last.Bounds()
	}

	white := image.NewRGBA(bounds)
	draw.Draw(white, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return white
}

// encodePreviewJPEG はフレームをプレビュー用JPEGへ変換する
func encodePreviewJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewQuality}); err != nil {
		log.Printf("プレビューフレームのエンコードに失敗: %v", err)
		return nil
	}
	return buf.Bytes()
}

// writeMJPEGPart はMJPEGストリームの1パートを書き込む
func writeMJPEGPart(w http.ResponseWriter, payload []byte) error {
	if _, err := w.Write([]byte("--frame\r\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("Content-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
