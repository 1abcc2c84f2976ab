package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"raffle-ledger/internal/raffle"
	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/xuri/excelize/v2"
)

// ExportHandler 导出汇总表
type ExportHandler struct {
	Svc *raffle.Service
}

func NewExportHandler(svc *raffle.Service) *ExportHandler {
	return &ExportHandler{Svc: svc}
}

var exportHeaders = []string{"标识符", "抽奖次数", "中奖概率(%)"}

func formatShare(s raffle.Summary, i int) string {
	return strconv.FormatFloat(s.Share(s.Totals[i]), 'f', 2, 64)
}

// ExportCSV 导出汇总为 CSV
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	s, err := h.Svc.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"raffle_%s_%s.csv\"",
		s.Mode, time.Now().Format("20060102")))

	// UTF-8 BOM（让 Excel 正确识别中文）
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	_ = writer.Write(exportHeaders)
	for i, t := range s.Totals {
		_ = writer.Write([]string{
			t.ParticipantID,
			strconv.FormatInt(t.Chances, 10),
			formatShare(s, i),
		})
	}
}

// ExportXLSX 导出汇总为 XLSX
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	s, err := h.Svc.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "抽奖汇总"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "创建工作表失败")
		return
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	// 设置表头
	for i, title := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, title)
	}

	// 写入数据
	for i, t := range s.Totals {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), t.ParticipantID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), t.Chances)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), s.Share(t))
	}

	// 合计行
	totalRow := len(s.Totals) + 2
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", totalRow), "合计")
	f.SetCellValue(sheetName, fmt.Sprintf("B%d", totalRow), s.TotalEntries)

	f.SetColWidth(sheetName, "A", "A", 34)
	f.SetColWidth(sheetName, "B", "B", 12)
	f.SetColWidth(sheetName, "C", "C", 14)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"raffle_%s_%s.xlsx\"",
		s.Mode, time.Now().Format("20060102")))

	if err := f.Write(c.Writer); err != nil {
		logger.Errorf("export: write xlsx: %v", err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "导出失败")
	}
}
