package handler

import (
	"errors"
	"net/http"

	"raffle-ledger/internal/backup"
	"raffle-ledger/internal/ledger"
	"raffle-ledger/internal/raffle"
	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
)

// writeError 把领域错误映射为统一的错误返回
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrInvalidIdentifier):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "标识符须为3-32位字母、数字、点或下划线")
	case errors.Is(err, util.ErrInvalidAmount):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "金额必须为正整数")
	case errors.Is(err, util.ErrNotAMultiple):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "金额必须是单位金额的整数倍")
	case errors.Is(err, util.ErrOutOfRange):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "单次获得的抽奖次数超出范围")
	case errors.Is(err, raffle.ErrModeMismatch):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "备份模式与当前账本模式不一致")
	case errors.Is(err, ledger.ErrDuplicateIdentifier):
		util.Error(c, http.StatusConflict, util.CodeConflict, "该标识符已登记")
	case errors.Is(err, ledger.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "该标识符没有抽奖次数")
	case errors.Is(err, backup.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "备份不存在")
	case errors.Is(err, ledger.ErrEmptyLedger):
		util.Error(c, http.StatusBadRequest, util.CodeEmptyLedger, "奖池为空，无法抽奖")
	case errors.Is(err, backup.ErrCorrupt):
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "备份文件损坏或密钥不匹配")
	case errors.Is(err, ledger.ErrBadPick):
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "抽奖随机数生成失败")
	case errors.Is(err, ledger.ErrStorage):
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "存储失败，请重试")
	default:
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "服务器内部错误")
	}
}
