package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"purikura/internal/camera"
	"purikura/internal/config"
	"purikura/internal/generated"
	"purikura/internal/photostore"
	"purikura/internal/relay"
	"purikura/internal/session"

	"github.com/gin-gonic/gin"
)

// Session は撮影セッションへの操作を表す
// 本番では*session.Controllerが実装する
type Session interface {
	State() session.State
	Remaining() int
	CurrentDescriptor() camera.Descriptor
	CurrentFormat() camera.FormatCapability
	CurrentOverlay() string
	TriggerCapture() bool
	SwitchDevice(ctx context.Context, device string) error
	SwitchFormat(ctx context.Context, format camera.FormatCapability) error
	NextOverlay() error
	PrevOverlay() error
	ListCameras(ctx context.Context) ([]camera.Descriptor, error)
	ListFormats(ctx context.Context) ([]camera.FormatCapability, error)
}

// BoothHandler は生成されたServerInterfaceを実装する
type BoothHandler struct {
	config  *config.Config
	store   *photostore.Store
	session Session
	relay   *relay.FrameRelay
	flash   *FlashSignal
}

// NewBoothHandler は新しいBoothHandlerを作成する
func NewBoothHandler(cfg *config.Config, store *photostore.Store, sess Session, frames *relay.FrameRelay, flash *FlashSignal) *BoothHandler {
	return &BoothHandler{
		config:  cfg,
		store:   store,
		session: sess,
		relay:   frames,
		flash:   flash,
	}
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *BoothHandler) HealthCheck(c *gin.Context) {
	response := generated.HealthResponse{
		Status:    generated.Healthy,
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetBoothStatus はセッション状態取得エンドポイントの実装
func (h *BoothHandler) GetBoothStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.boothStatus())
}

// boothStatus は現在のセッション状態をレスポンスに変換する
func (h *BoothHandler) boothStatus() generated.BoothStatusResponse {
	return generated.BoothStatusResponse{
		State:     convertSessionState(h.session.State()),
		Remaining: h.session.Remaining(),
		Device:    h.session.CurrentDescriptor().Device,
		Format:    h.session.CurrentFormat().String(),
		Overlay:   h.session.CurrentOverlay(),
		Timestamp: time.Now(),
	}
}

// TriggerCapture は撮影トリガーエンドポイントの実装
func (h *BoothHandler) TriggerCapture(c *gin.Context) {
	// Idle以外では受理されない。受理の判定はセッション側が行う
	accepted := h.session.TriggerCapture()

	response := generated.TriggerResponse{
		Accepted: accepted,
		State:    string(convertSessionState(h.session.State())),
	}
	c.JSON(http.StatusAccepted, response)
}

// ListCameras はカメラ一覧エンドポイントの実装
func (h *BoothHandler) ListCameras(c *gin.Context) {
	descs, err := h.session.ListCameras(c.Request.Context())
	if err != nil {
		h.errorJSON(c, http.StatusInternalServerError, "camera_enumeration_failed", err.Error())
		return
	}

	cameras := make([]generated.CameraInfo, 0, len(descs))
	for _, desc := range descs {
		cameras = append(cameras, generated.CameraInfo{
			Id:     desc.ID,
			Name:   desc.Name,
			Device: desc.Device,
		})
	}

	c.JSON(http.StatusOK, generated.CamerasResponse{Cameras: cameras})
}

// ListFormats はフォーマット一覧エンドポイントの実装
func (h *BoothHandler) ListFormats(c *gin.Context) {
	formats, err := h.session.ListFormats(c.Request.Context())
	if err != nil {
		h.errorJSON(c, http.StatusServiceUnavailable, "no_device_bound", err.Error())
		return
	}

	infos := make([]generated.FormatInfo, 0, len(formats))
	for _, f := range formats {
		infos = append(infos, generated.FormatInfo{
			Width:       f.Width,
			Height:      f.Height,
			PixelFormat: string(f.PixelFormat),
			Fps:         f.FPS,
		})
	}

	c.JSON(http.StatusOK, generated.FormatsResponse{Formats: infos})
}

// SwitchCamera はカメラ切り替えエンドポイントの実装
func (h *BoothHandler) SwitchCamera(c *gin.Context) {
	var req generated.SwitchCameraJSONRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.session.SwitchDevice(c.Request.Context(), req.Device); err != nil {
		if errors.Is(err, camera.ErrNoDeviceFound) {
			h.errorJSON(c, http.StatusNotFound, "device_not_found", err.Error())
			return
		}
		h.errorJSON(c, http.StatusInternalServerError, "switch_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, h.boothStatus())
}

// SwitchFormat はフォーマット切り替えエンドポイントの実装
func (h *BoothHandler) SwitchFormat(c *gin.Context) {
	var req generated.SwitchFormatJSONRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	format := camera.FormatCapability{
		Width:       req.Width,
		Height:      req.Height,
		PixelFormat: camera.PixelFormat(req.PixelFormat),
		FPS:         req.Fps,
	}
	if err := h.session.SwitchFormat(c.Request.Context(), format); err != nil {
		h.errorJSON(c, http.StatusInternalServerError, "switch_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, h.boothStatus())
}

// NextOverlay はオーバーレイ送りエンドポイントの実装
func (h *BoothHandler) NextOverlay(c *gin.Context) {
	if err := h.session.NextOverlay(); err != nil {
		h.errorJSON(c, http.StatusInternalServerError, "overlay_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, generated.OverlayResponse{Overlay: h.session.CurrentOverlay()})
}

// PrevOverlay はオーバーレイ戻しエンドポイントの実装
func (h *BoothHandler) PrevOverlay(c *gin.Context) {
	if err := h.session.PrevOverlay(); err != nil {
		h.errorJSON(c, http.StatusInternalServerError, "overlay_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, generated.OverlayResponse{Overlay: h.session.CurrentOverlay()})
}

// UploadPhoto は写真アップロードエンドポイントの実装
// multipartのfileフィールドかbase64_dataフォームフィールドのどちらかを受け付ける
func (h *BoothHandler) UploadPhoto(c *gin.Context) {
	data, filename, ok := h.readUploadPayload(c)
	if !ok {
		return
	}

	fields := photostore.Fields{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Tags:        splitTags(c.PostForm("tags")),
	}

	meta, err := h.store.Add(data, filename, fields)
	if err != nil {
		h.errorJSON(c, http.StatusBadRequest, "upload_rejected", err.Error())
		return
	}

	c.JSON(http.StatusCreated, toPhoto(meta))
}

// readUploadPayload はアップロードリクエストから写真データを取り出す
func (h *BoothHandler) readUploadPayload(c *gin.Context) ([]byte, string, bool) {
	if fileHeader, err := c.FormFile("file"); err == nil {
		if fileHeader.Size > photostore.MaxPhotoSize {
			h.errorJSON(c, http.StatusBadRequest, "file_too_large", "ファイルサイズが上限を超えています")
			return nil, "", false
		}

		f, err := fileHeader.Open()
		if err != nil {
			h.errorJSON(c, http.StatusBadRequest, "invalid_file", err.Error())
			return nil, "", false
		}
		defer func() { _ = f.Close() }()

		data, err := io.ReadAll(io.LimitReader(f, photostore.MaxPhotoSize+1))
		if err != nil {
			h.errorJSON(c, http.StatusBadRequest, "invalid_file", err.Error())
			return nil, "", false
		}
		return data, fileHeader.Filename, true
	}

	if encoded := c.PostForm("base64_data"); encoded != "" {
		// data URL形式の接頭辞は剥がす
		if strings.HasPrefix(encoded, "data:") {
			if i := strings.Index(encoded, ","); i >= 0 {
				encoded = encoded[i+1:]
			}
		}

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			h.errorJSON(c, http.StatusBadRequest, "invalid_base64", err.Error())
			return nil, "", false
		}

		filename := c.PostForm("filename")
		if filename == "" {
			filename = "photo.png"
		}
		return data, filename, true
	}

	h.errorJSON(c, http.StatusBadRequest, "missing_payload", "fileまたはbase64_dataを指定してください")
	return nil, "", false
}

// ListPhotos は写真一覧エンドポイントの実装
func (h *BoothHandler) ListPhotos(c *gin.Context, params generated.ListPhotosParams) {
	all, err := h.store.List()
	if err != nil {
		h.errorJSON(c, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	total := len(all)
	page := paginate(all, params.Offset, params.Limit)

	photos := make([]generated.Photo, 0, len(page))
	for _, meta := range page {
		photos = append(photos, toPhoto(meta))
	}

	c.JSON(http.StatusOK, generated.PhotoListResponse{
		Photos: photos,
		Count:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// SearchPhotos は写真検索エンドポイントの実装
func (h *BoothHandler) SearchPhotos(c *gin.Context, params generated.SearchPhotosParams) {
	query := ""
	if params.Q != nil {
		query = *params.Q
	} else if params.Tag != nil {
		query = *params.Tag
	}

	matched, err := h.store.Search(query)
	if err != nil {
		h.errorJSON(c, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}

	photos := make([]generated.Photo, 0, len(matched))
	for _, meta := range matched {
		photos = append(photos, toPhoto(meta))
	}

	c.JSON(http.StatusOK, generated.PhotoListResponse{
		Photos: photos,
		Count:  len(photos),
	})
}

// GetPhoto は写真メタデータ取得エンドポイントの実装
func (h *BoothHandler) GetPhoto(c *gin.Context, photoID string) {
	meta, err := h.store.Get(photoID)
	if err != nil {
		h.notFoundOrError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPhoto(meta))
}

// GetPhotoFile は写真ファイル取得エンドポイントの実装
func (h *BoothHandler) GetPhotoFile(c *gin.Context, photoID string) {
	meta, err := h.store.Get(photoID)
	if err != nil {
		h.notFoundOrError(c, err)
		return
	}

	c.Header("Content-Type", meta.ContentType)
	c.File(meta.FilePath)
}

// GetPhotoBase64 は写真のbase64取得エンドポイントの実装
func (h *BoothHandler) GetPhotoBase64(c *gin.Context, photoID string) {
	meta, err := h.store.Get(photoID)
	if err != nil {
		h.notFoundOrError(c, err)
		return
	}

	data, err := readPhotoFile(meta.FilePath)
	if err != nil {
		h.errorJSON(c, http.StatusInternalServerError, "read_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, generated.Base64Response{
		Id:          meta.ID,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		Base64Data:  base64.StdEncoding.EncodeToString(data),
	})
}

// UpdatePhoto は写真メタデータ更新エンドポイントの実装
func (h *BoothHandler) UpdatePhoto(c *gin.Context, photoID string) {
	var req generated.UpdatePhotoJSONRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	fields := photostore.Fields{}
	if req.Title != nil {
		fields.Title = *req.Title
	}
	if req.Description != nil {
		fields.Description = *req.Description
	}
	if req.Tags != nil {
		fields.Tags = *req.Tags
	}

	meta, err := h.store.Update(photoID, fields)
	if err != nil {
		h.notFoundOrError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPhoto(meta))
}

// DeletePhoto は写真削除エンドポイントの実装
func (h *BoothHandler) DeletePhoto(c *gin.Context, photoID string) {
	if err := h.store.Delete(photoID); err != nil {
		h.notFoundOrError(c, err)
		return
	}
	c.JSON(http.StatusOK, generated.DeleteResponse{Deleted: true, Id: photoID})
}

// notFoundOrError はErrNotFoundを404、それ以外を500として返す
func (h *BoothHandler) notFoundOrError(c *gin.Context, err error) {
	if errors.Is(err, photostore.ErrNotFound) {
		h.errorJSON(c, http.StatusNotFound, "photo_not_found", "指定された写真が見つかりません")
		return
	}
	h.errorJSON(c, http.StatusInternalServerError, "internal_error", err.Error())
}

// errorJSON は統一形式のエラーレスポンスを返す
func (h *BoothHandler) errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, generated.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// ヘルパー関数

// convertSessionState はセッション状態をレスポンスの列挙値に変換する
func convertSessionState(s session.State) generated.BoothStatusResponseState {
	switch s {
	case session.StateCountdownRunning:
		return generated.CountdownRunning
	case session.StateCapturing:
		return generated.Capturing
	default:
		return generated.Idle
	}
}

// toPhoto はメタデータを生成されたスキーマに変換する
func toPhoto(meta *photostore.Metadata) generated.Photo {
	photo := generated.Photo{
		Id:        meta.ID,
		Filename:  meta.Filename,
		Timestamp: meta.Timestamp,
		FileSize:  meta.FileSize,
		UpdatedAt: meta.UpdatedAt,
	}

	if meta.OriginalFilename != "" {
		photo.OriginalFilename = stringPtr(meta.OriginalFilename)
	}
	if meta.ContentType != "" {
		photo.ContentType = stringPtr(meta.ContentType)
	}
	if meta.Title != "" {
		photo.Title = stringPtr(meta.Title)
	}
	if meta.Description != "" {
		photo.Description = stringPtr(meta.Description)
	}
	if len(meta.Tags) > 0 {
		tags := meta.Tags
		photo.Tags = &tags
	}
	if meta.CameraUsed != "" {
		photo.CameraUsed = stringPtr(meta.CameraUsed)
	}
	if meta.Resolution != "" {
		photo.Resolution = stringPtr(meta.Resolution)
	}

	return photo
}

// paginate はoffset/limitを適用する
func paginate(all []*photostore.Metadata, offset, limit *int) []*photostore.Metadata {
	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start >= len(all) {
		return nil
	}

	end := len(all)
	if limit != nil && *limit > 0 && start+*limit < end {
		end = start + *limit
	}
	return all[start:end]
}

// splitTags はカンマ区切りのタグ文字列を分解する
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}

// readPhotoFile は写真ファイルを読み込む
func readPhotoFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("写真ファイルの読み込みに失敗: %w", err)
	}
	return data, nil
}
