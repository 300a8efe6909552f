package service

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/file/biz"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/response"
)

// fileUseCase FileService 依赖的业务方法（biz.FileUseCase 实现）
type fileUseCase interface {
	ListFiles(ctx context.Context, owner biz.Owner, raw biz.RawListParams) (*biz.PagePayload, error)
	UploadIntent(ctx context.Context, owner biz.Owner, fileName string, size int64, contentType string) (*biz.UploadTicket, error)
	ConfirmUpload(ctx context.Context, owner biz.Owner, key string) (*biz.FileRecord, error)
	GetDetails(ctx context.Context, owner biz.Owner, loc biz.FileLocator, useCache bool) (*biz.FileRecord, error)
	Refresh(ctx context.Context, owner biz.Owner, loc biz.FileLocator) (*biz.FileRecord, error)
	Download(ctx context.Context, owner biz.Owner, loc biz.FileLocator) (*biz.DownloadResult, error)
	Rename(ctx context.Context, owner biz.Owner, loc biz.FileLocator, newName string) (*biz.FileRecord, error)
	ChangeTier(ctx context.Context, owner biz.Owner, loc biz.FileLocator, target string) (*biz.TierResult, error)
	Delete(ctx context.Context, owner biz.Owner, loc biz.FileLocator) error
}

// FileService 文件 HTTP 服务
type FileService struct {
	uc     fileUseCase
	logger *logger.Logger
}

// NewFileService 创建文件服务
func NewFileService(uc *biz.FileUseCase, log *logger.Logger) *FileService {
	return newFileService(uc, log)
}

func newFileService(uc fileUseCase, log *logger.Logger) *FileService {
	return &FileService{uc: uc, logger: log.Named("file_service")}
}

// RegisterRoutes 注册文件路由（需要先经过 JWTAuth）
func (s *FileService) RegisterRoutes(r *gin.RouterGroup) {
	files := r.Group("/files")
	{
		files.GET("", s.ListFiles)
		files.POST("/presign", s.UploadIntent)
		files.POST("/confirm", s.ConfirmUpload)
		files.GET("/:ref", s.GetFile)
		files.GET("/:ref/download", s.Download)
		files.POST("/:ref/refresh", s.Refresh)
		files.PATCH("/:ref", s.Rename)
		files.PUT("/:ref/tier", s.ChangeTier)
		files.DELETE("/:ref", s.Delete)
	}
}

// UploadIntentRequest 预签名上传请求
type UploadIntentRequest struct {
	FileName    string `json:"file_name" binding:"required,filename"`
	Size        int64  `json:"size" binding:"min=0"`
	ContentType string `json:"content_type"`
}

// ConfirmUploadRequest 确认上传请求
type ConfirmUploadRequest struct {
	Key string `json:"key" binding:"required"`
}

// RenameRequest 重命名请求
type RenameRequest struct {
	NewName string `json:"new_name" binding:"required,filename"`
}

// ChangeTierRequest 层级变更请求
type ChangeTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// ListFiles 文件列表
// @Summary 文件列表
// @Tags files
// @Produce json
// @Param page query int false "页码（offset 模式）"
// @Param per_page query int false "每页数量"
// @Param cursor query string false "游标"
// @Param use_cache query bool false "是否使用缓存"
// @Param source query string false "metadata|storage"
// @Success 200 {object} biz.PagePayload
// @Router /api/v1/files [get]
func (s *FileService) ListFiles(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}

	page, err := s.uc.ListFiles(ctx, owner, biz.RawListParams{
		Page:     c.Query("page"),
		PerPage:  c.Query("per_page"),
		Cursor:   c.Query("cursor"),
		UseCache: c.Query("use_cache"),
		Source:   c.Query("source"),
	})
	if err != nil {
		s.fail(c, "list files", err)
		return
	}

	response.Success(c, page)
}

// UploadIntent 签发预签名上传 URL
// @Summary 申请上传
// @Tags files
// @Accept json
// @Produce json
// @Param request body UploadIntentRequest true "文件信息"
// @Success 201 {object} biz.UploadTicket
// @Router /api/v1/files/presign [post]
func (s *FileService) UploadIntent(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}

	var req UploadIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ticket, err := s.uc.UploadIntent(ctx, owner, req.FileName, req.Size, req.ContentType)
	if err != nil {
		s.fail(c, "upload intent", err)
		return
	}

	response.Created(c, ticket)
}

// ConfirmUpload 确认上传完成
// @Summary 确认上传
// @Tags files
// @Accept json
// @Produce json
// @Param request body ConfirmUploadRequest true "存储 key"
// @Success 200 {object} biz.FileView
// @Router /api/v1/files/confirm [post]
func (s *FileService) ConfirmUpload(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}

	var req ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rec, err := s.uc.ConfirmUpload(ctx, owner, req.Key)
	if err != nil {
		s.fail(c, "confirm upload", err)
		return
	}

	response.Success(c, biz.NewFileView(rec))
}

// GetFile 文件详情
// @Summary 文件详情
// @Tags files
// @Produce json
// @Param ref path string true "文件 id / key / files/<id>"
// @Param by query string false "key|id|ref"
// @Param use_cache query bool false "是否信任缓存元数据"
// @Success 200 {object} biz.FileView
// @Router /api/v1/files/{ref} [get]
func (s *FileService) GetFile(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}
	loc, ok := s.locator(c)
	if !ok {
		return
	}

	rec, err := s.uc.GetDetails(ctx, owner, loc, queryBool(c, "use_cache", true))
	if err != nil {
		s.fail(c, "get file", err)
		return
	}

	response.Success(c, biz.NewFileView(rec))
}

// Refresh 强制刷新元数据
// @Summary 刷新元数据
// @Tags files
// @Produce json
// @Param ref path string true "文件引用"
// @Success 200 {object} biz.FileView
// @Router /api/v1/files/{ref}/refresh [post]
func (s *FileService) Refresh(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}
	loc, ok := s.locator(c)
	if !ok {
		return
	}

	rec, err := s.uc.Refresh(ctx, owner, loc)
	if err != nil {
		s.fail(c, "refresh file", err)
		return
	}

	response.Success(c, biz.NewFileView(rec))
}

// Download 获取下载链接，归档文件返回 202
// @Summary 下载
// @Tags files
// @Produce json
// @Param ref path string true "文件引用"
// @Success 200 {object} biz.DownloadResult
// @Success 202 {object} biz.DownloadResult
// @Router /api/v1/files/{ref}/download [get]
func (s *FileService) Download(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}
	loc, ok := s.locator(c)
	if !ok {
		return
	}

	result, err := s.uc.Download(ctx, owner, loc)
	if err != nil {
		s.fail(c, "download", err)
		return
	}

	switch result.Status {
	case biz.DownloadReady:
		response.Success(c, result)
	case biz.DownloadInProgress:
		response.Accepted(c, "File is being restored from archive, retry later", result)
	default:
		response.Accepted(c, "Restore from archive requested, retry later", result)
	}
}

// Rename 重命名
// @Summary 重命名
// @Tags files
// @Accept json
// @Produce json
// @Param ref path string true "文件引用"
// @Param request body RenameRequest true "新文件名"
// @Success 200 {object} biz.FileView
// @Router /api/v1/files/{ref} [patch]
func (s *FileService) Rename(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}
	loc, ok := s.locator(c)
	if !ok {
		return
	}

	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rec, err := s.uc.Rename(ctx, owner, loc, req.NewName)
	if err != nil {
		s.fail(c, "rename", err)
		return
	}

	response.Success(c, biz.NewFileView(rec))
}

// ChangeTier 变更存储层级
// @Summary 变更层级
// @Tags files
// @Accept json
// @Produce json
// @Param ref path string true "文件引用"
// @Param request body ChangeTierRequest true "standard|glacier"
// @Success 200 {object} biz.TierResult
// @Success 202 {object} biz.TierResult
// @Router /api/v1/files/{ref}/tier [put]
func (s *FileService) ChangeTier(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}
	loc, ok := s.locator(c)
	if !ok {
		return
	}

	var req ChangeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := s.uc.ChangeTier(ctx, owner, loc, req.Tier)
	if err != nil {
		s.fail(c, "change tier", err)
		return
	}

	switch result.Status {
	case biz.TierChangeCompleted:
		response.Success(c, result)
	case biz.TierRestoreRunning:
		response.Accepted(c, "Restore already in progress, retry later", result)
	default:
		response.Accepted(c, "Restore requested", result)
	}
}

// Delete 删除文件
// @Summary 删除文件
// @Tags files
// @Produce json
// @Param ref path string true "文件引用"
// @Success 200
// @Router /api/v1/files/{ref} [delete]
func (s *FileService) Delete(c *gin.Context) {
	owner, ctx, ok := s.owner(c)
	if !ok {
		return
	}
	loc, ok := s.locator(c)
	if !ok {
		return
	}

	if err := s.uc.Delete(ctx, owner, loc); err != nil {
		s.fail(c, "delete", err)
		return
	}

	response.SuccessWithMessage(c, "File deleted", nil)
}

// owner 从 JWT 注入的上下文构造文件所有者
func (s *FileService) owner(c *gin.Context) (biz.Owner, context.Context, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.Unauthorized(c, "user not authenticated")
		return biz.Owner{}, nil, false
	}

	owner, err := biz.NewOwner(userID, c.GetString("email"))
	if err != nil {
		s.logger.Warn("token carries unusable email", zap.String("user_id", userID), zap.Error(err))
		response.Unauthorized(c, "token has no usable email")
		return biz.Owner{}, nil, false
	}

	return owner, logger.WithUserID(c.Request.Context(), userID), true
}

func (s *FileService) locator(c *gin.Context) (biz.FileLocator, bool) {
	loc, err := biz.ParseLocator(strings.TrimPrefix(c.Param("ref"), "/"), c.Query("by"))
	if err != nil {
		response.HandleError(c, toAppError(err))
		return biz.FileLocator{}, false
	}
	return loc, true
}

func (s *FileService) fail(c *gin.Context, op string, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus() >= 500 {
		s.logger.Error(op+" failed",
			zap.String("user_id", c.GetString("user_id")),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	response.HandleError(c, appErr)
}

func queryBool(c *gin.Context, name string, def bool) bool {
	switch strings.ToLower(c.Query(name)) {
	case "":
		return def
	case "0", "false", "no":
		return false
	default:
		return true
	}
}
