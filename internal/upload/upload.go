// Package upload は撮影写真のアップロード送信を担う
//
// アップロードは任意の副作用であり、失敗してもログに残すのみで
// 撮影フローには一切伝播させない
package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client は設定されたエンドポイントへ写真をアップロードする
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient は新しいClientを作成する
// endpointが空の場合、Uploadは何もせず成功する
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enabled はアップロード先が設定されているかどうかを返す
func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

// Upload は保存済みの写真ファイルをmultipartでPOSTする
// サーバーは201を返すことが期待される
func (c *Client) Upload(path string) error {
	if !c.Enabled() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("アップロード対象のオープンに失敗: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("multipartフォームの作成に失敗: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("写真データの読み込みに失敗: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("multipartフォームのクローズに失敗: %w", err)
	}

	resp, err := c.httpClient.Post(c.endpoint, writer.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("アップロードリクエストに失敗: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("アップロードが拒否されました: %d %s", resp.StatusCode, string(msg))
	}

	return nil
}
