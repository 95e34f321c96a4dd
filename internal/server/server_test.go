package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"purikura/internal/camera"
	"purikura/internal/config"
	"purikura/internal/generated"
	"purikura/internal/photostore"
	"purikura/internal/relay"
	"purikura/internal/session"
)

// fakeSession はテスト用のSession実装
type fakeSession struct {
	state     session.State
	remaining int
	triggered int
	desc      camera.Descriptor
	format    camera.FormatCapability
	overlay   string
	cameras   []camera.Descriptor
	formats   []camera.FormatCapability
	switchErr error
}

func (f *fakeSession) State() session.State                   { return f.state }
func (f *fakeSession) Remaining() int                         { return f.remaining }
func (f *fakeSession) CurrentDescriptor() camera.Descriptor   { return f.desc }
func (f *fakeSession) CurrentFormat() camera.FormatCapability { return f.format }
func (f *fakeSession) CurrentOverlay() string                 { return f.overlay }
func (f *fakeSession) NextOverlay() error                     { f.overlay = "next.png"; return nil }
func (f *fakeSession) PrevOverlay() error                     { f.overlay = "prev.png"; return nil }

func (f *fakeSession) TriggerCapture() bool {
	if f.state != session.StateIdle {
		return false
	}
	f.triggered++
	f.state = session.StateCountdownRunning
	return true
}

func (f *fakeSession) SwitchDevice(_ context.Context, device string) error {
	if f.switchErr != nil {
		return f.switchErr
	}
	f.desc.Device = device
	return nil
}

func (f *fakeSession) SwitchFormat(_ context.Context, format camera.FormatCapability) error {
	if f.switchErr != nil {
		return f.switchErr
	}
	f.format = format
	return nil
}

func (f *fakeSession) ListCameras(_ context.Context) ([]camera.Descriptor, error) {
	return f.cameras, nil
}

func (f *fakeSession) ListFormats(_ context.Context) ([]camera.FormatCapability, error) {
	return f.formats, nil
}

// newTestServer はテスト用のサーバー一式を構築する
func newTestServer(t *testing.T) (*Server, *fakeSession, *photostore.Store, *relay.FrameRelay, *FlashSignal) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080

	store := photostore.New(t.TempDir())
	sess := &fakeSession{
		state:  session.StateIdle,
		desc:   camera.Descriptor{ID: "cam-1", Name: "テストカメラ", Device: "/dev/video0"},
		format: camera.FormatCapability{Width: 1280, Height: 720, PixelFormat: camera.PixelFormatMJPG, FPS: 30},
		cameras: []camera.Descriptor{
			{ID: "cam-1", Name: "テストカメラ", Device: "/dev/video0"},
		},
		formats: []camera.FormatCapability{
			{Width: 640, Height: 480, PixelFormat: camera.PixelFormatMJPG, FPS: 30},
		},
		overlay: "hearts.png",
	}

	frames := relay.New()
	flash := NewFlashSignal()
	handler := NewBoothHandler(cfg, store, sess, frames, flash)
	return New(cfg, handler), sess, store, frames, flash
}

// doRequest はginエンジンへリクエストを投げてレコーダーを返す
func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

// encodeTestPNG は単色のテスト用PNGを作る
func encodeTestPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

// multipartUpload はfileフィールド付きのアップロードリクエストを作る
func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthCheck(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp generated.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != generated.Healthy {
		t.Errorf("health status = %q, want healthy", resp.Status)
	}
}

func TestBoothStatusAndTrigger(t *testing.T) {
	srv, sess, _, _, _ := newTestServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/booth/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status generated.BoothStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.State != generated.Idle || status.Device != "/dev/video0" {
		t.Errorf("status = %+v, want idle on /dev/video0", status)
	}
	if status.Overlay != "hearts.png" {
		t.Errorf("overlay = %q, want hearts.png", status.Overlay)
	}

	// トリガーはIdleでのみ受理される
	rec = doRequest(srv, httptest.NewRequest(http.MethodPost, "/api/booth/trigger", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger status = %d, want 202", rec.Code)
	}
	var trig generated.TriggerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &trig); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !trig.Accepted {
		t.Error("first trigger should be accepted")
	}

	// カウントダウン中の再トリガーは拒否される
	rec = doRequest(srv, httptest.NewRequest(http.MethodPost, "/api/booth/trigger", nil))
	var trig2 generated.TriggerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &trig2); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if trig2.Accepted {
		t.Error("second trigger should not be accepted")
	}
	if sess.triggered != 1 {
		t.Errorf("triggered = %d, want 1", sess.triggered)
	}
}

func TestListCamerasAndFormats(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/booth/cameras", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cameras status = %d, want 200", rec.Code)
	}
	var cams generated.CamerasResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &cams); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(cams.Cameras) != 1 || cams.Cameras[0].Device != "/dev/video0" {
		t.Errorf("cameras = %+v", cams.Cameras)
	}

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/booth/formats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("formats status = %d, want 200", rec.Code)
	}
	var formats generated.FormatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &formats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(formats.Formats) != 1 || formats.Formats[0].Width != 640 {
		t.Errorf("formats = %+v", formats.Formats)
	}
}

func TestSwitchCamera(t *testing.T) {
	srv, sess, _, _, _ := newTestServer(t)

	body := `{"device":"/dev/video2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/booth/camera", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if sess.desc.Device != "/dev/video2" {
		t.Errorf("bound device = %s, want /dev/video2", sess.desc.Device)
	}

	// 存在しないデバイスは404
	sess.switchErr = camera.ErrNoDeviceFound
	req = httptest.NewRequest(http.MethodPost, "/api/booth/camera", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = doRequest(srv, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestOverlayCycling(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodPost, "/api/booth/overlay/next", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp generated.OverlayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Overlay != "next.png" {
		t.Errorf("overlay = %q, want next.png", resp.Overlay)
	}
}

func TestPhotoUploadAndLifecycle(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	data := encodeTestPNG(t, color.RGBA{R: 255, A: 255})
	req := multipartUpload(t, "test.png", data, map[string]string{
		"title": "テスト写真",
		"tags":  "booth, portrait",
	})
	rec := doRequest(srv, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var photo generated.Photo
	if err := json.Unmarshal(rec.Body.Bytes(), &photo); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if photo.Title == nil || *photo.Title != "テスト写真" {
		t.Errorf("title = %v, want テスト写真", photo.Title)
	}
	if photo.Tags == nil || len(*photo.Tags) != 2 {
		t.Errorf("tags = %v, want 2 entries", photo.Tags)
	}

	// 一覧に現れる
	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/photos", nil))
	var list generated.PhotoListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if list.Count != 1 {
		t.Fatalf("photo count = %d, want 1", list.Count)
	}

	// ファイル取得
	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/photos/"+photo.Id+"/file", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("file status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("file body does not match uploaded bytes")
	}

	// base64取得
	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/photos/"+photo.Id+"/base64", nil))
	var b64 generated.Base64Response
	if err := json.Unmarshal(rec.Body.Bytes(), &b64); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(b64.Base64Data)
	if err != nil {
		t.Fatalf("invalid base64 payload: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("base64 payload does not match uploaded bytes")
	}

	// メタデータ更新
	update := `{"description":"更新済み","tags":["updated"]}`
	req = httptest.NewRequest(http.MethodPut, "/api/photos/"+photo.Id, strings.NewReader(update))
	req.Header.Set("Content-Type", "application/json")
	rec = doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var updated generated.Photo
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Description == nil || *updated.Description != "更新済み" {
		t.Errorf("description = %v, want 更新済み", updated.Description)
	}

	// 削除して404になる
	rec = doRequest(srv, httptest.NewRequest(http.MethodDelete, "/api/photos/"+photo.Id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}
	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/photos/"+photo.Id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestPhotoUploadBase64(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	data := encodeTestPNG(t, color.RGBA{G: 255, A: 255})
	form := url.Values{}
	form.Set("base64_data", base64.StdEncoding.EncodeToString(data))
	form.Set("filename", "green.png")
	req := httptest.NewRequest(http.MethodPost, "/api/photos", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var photo generated.Photo
	if err := json.Unmarshal(rec.Body.Bytes(), &photo); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if photo.OriginalFilename == nil || *photo.OriginalFilename != "green.png" {
		t.Errorf("original filename = %v, want green.png", photo.OriginalFilename)
	}
}

func TestPhotoUploadRejections(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	// 受け付けない拡張子
	req := multipartUpload(t, "malware.exe", []byte("data"), nil)
	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("exe upload status = %d, want 400", rec.Code)
	}

	// ペイロードなし
	req = httptest.NewRequest(http.MethodPost, "/api/photos", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty upload status = %d, want 400", rec.Code)
	}
}

func TestPhotoSearch(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	data := encodeTestPNG(t, color.RGBA{B: 255, A: 255})
	doRequest(srv, multipartUpload(t, "a.png", data, map[string]string{"title": "海の写真"}))
	doRequest(srv, multipartUpload(t, "b.png", data, map[string]string{"tags": "mountain"}))

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/photos/search?q=海", nil))
	var result generated.PhotoListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Count != 1 {
		t.Errorf("search by title count = %d, want 1", result.Count)
	}

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/photos/search?tag=mountain", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Count != 1 {
		t.Errorf("search by tag count = %d, want 1", result.Count)
	}
}

func TestPhotoListPagination(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	data := encodeTestPNG(t, color.RGBA{R: 128, A: 255})
	for i := 0; i < 5; i++ {
		rec := doRequest(srv, multipartUpload(t, fmt.Sprintf("p%d.png", i), data, nil))
		if rec.Code != http.StatusCreated {
			t.Fatalf("upload %d failed: %d", i, rec.Code)
		}
	}

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/photos?limit=2&offset=1", nil))
	var list generated.PhotoListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if list.Count != 5 {
		t.Errorf("total count = %d, want 5", list.Count)
	}
	if len(list.Photos) != 2 {
		t.Errorf("page size = %d, want 2", len(list.Photos))
	}
}

func TestPreviewStream(t *testing.T) {
	srv, _, _, frames, flash := newTestServer(t)

	// プレビュー対象のフレームを発行しておく
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
	frames.Publish(&relay.Frame{Image: img, Timestamp: time.Now()})
	flash.Fire()

	ts := httptest.NewServer(srv.Engine())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/booth/preview", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "multipart/x-mixed-replace") {
		t.Fatalf("content type = %q, want multipart/x-mixed-replace", got)
	}

	// 最初のパート（フラッシュの白フレーム）の境界とヘッダーを確認する
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read boundary: %v", err)
	}
	if strings.TrimSpace(line) != "--frame" {
		t.Errorf("boundary = %q, want --frame", strings.TrimSpace(line))
	}
	line, err = reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read part header: %v", err)
	}
	if !strings.Contains(line, "image/jpeg") {
		t.Errorf("part header = %q, want image/jpeg", line)
	}
}
