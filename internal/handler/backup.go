package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"raffle-ledger/internal/backup"
	"raffle-ledger/internal/models"
	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
)

// BackupHandler 负责备份相关接口
type BackupHandler struct {
	Backups *backup.Manager
}

func NewBackupHandler(m *backup.Manager) *BackupHandler {
	return &BackupHandler{Backups: m}
}

func backupResp(b *models.Backup) gin.H {
	return gin.H{
		"id":         b.ID,
		"mode":       b.Mode,
		"file_name":  b.FileName,
		"size":       b.Size,
		"chances":    b.Chances,
		"created_at": b.CreatedAt,
	}
}

func backupID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "备份 ID 无效")
		return 0, false
	}
	return uint(id), true
}

// CreateBackup 生成当前账本的加密备份文件
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	b, err := h.Backups.Create(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	util.Success(c, util.Response{"backup": backupResp(&b)})
}

func (h *BackupHandler) ListBackups(c *gin.Context) {
	list, err := h.Backups.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]gin.H, 0, len(list))
	for i := range list {
		items = append(items, backupResp(&list[i]))
	}
	util.Success(c, util.Response{"items": items})
}

// DownloadBackup 下载加密后的备份文件
func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	id, ok := backupID(c)
	if !ok {
		return
	}
	b, err := h.Backups.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", b.FileName))
	c.File(b.FilePath)
}

func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	id, ok := backupID(c)
	if !ok {
		return
	}
	if err := h.Backups.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	util.Success(c, util.Response{"message": "删除成功"})
}

// RestoreBackup 用备份整体替换当前账本
func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	id, ok := backupID(c)
	if !ok {
		return
	}
	n, err := h.Backups.Restore(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	util.Success(c, util.Response{
		"message":       "恢复成功",
		"chances_count": n,
	})
}
