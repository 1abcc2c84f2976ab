package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"raffle-ledger/internal/raffle"
	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
)

// EntryHandler 负责抽奖次数的登记、撤销、汇总和抽奖
type EntryHandler struct {
	Svc *raffle.Service
}

func NewEntryHandler(svc *raffle.Service) *EntryHandler {
	return &EntryHandler{Svc: svc}
}

// ---------- 请求结构 ----------

type registerReq struct {
	ID string `json:"id" binding:"required"`
	// amount 可以是数字或数字字符串，unique 模式下忽略
	Amount json.RawMessage `json:"amount"`
}

// parseAmount 返回 nil 表示请求里没有 amount
func parseAmount(raw json.RawMessage) (*int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrInvalidAmount, err)
		}
	}
	v, err := util.ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Register 登记一次贡献（加权模式）或一个参与者（唯一模式）
func (h *EntryHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	grant, err := h.Svc.Register(c.Request.Context(), req.ID, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	util.Success(c, util.Response{
		"id":           grant.ParticipantID,
		"chances":      grant.Chances,
		"amount":       grant.Amount,
		"chance_value": grant.ChanceValue,
		"batch":        grant.Batch,
	})
}

func (h *EntryHandler) Summary(c *gin.Context) {
	s, err := h.Svc.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := util.Response{
		"mode":          s.Mode,
		"total_entries": s.TotalEntries,
		"totals":        s.Totals,
	}
	if s.UnitSize > 0 {
		resp["unit_size"] = s.UnitSize
	}
	util.Success(c, resp)
}

// RemoveOne 撤销该标识符最近一次获得的一个抽奖次数
func (h *EntryHandler) RemoveOne(c *gin.Context) {
	if err := h.Svc.RemoveOne(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	util.Success(c, util.Response{"removed": 1})
}

func (h *EntryHandler) RemoveAll(c *gin.Context) {
	removed, err := h.Svc.RemoveAll(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	util.Success(c, util.Response{"removed": removed})
}

func (h *EntryHandler) Clear(c *gin.Context) {
	if err := h.Svc.Clear(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	util.Success(c, util.Response{"message": "已清空"})
}

func (h *EntryHandler) Draw(c *gin.Context) {
	res, err := h.Svc.Draw(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	util.Success(c, util.Response{
		"winner": gin.H{
			"id":       res.ParticipantID,
			"entry_id": res.EntryID,
		},
		"total":    res.TotalChances,
		"drawn_at": res.DrawnAt,
	})
}
