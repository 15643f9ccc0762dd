package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"echelon/backend/internal/tier"
)

// ── 导出模块业务错误 ──

var (
	ErrExportEmpty        = errors.New("排行榜暂无数据")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportLeaderboard 导出积分排行榜为 Excel
	ExportLeaderboard(ctx context.Context, limit int, now time.Time) (*bytes.Buffer, string, error)
}

type exportService struct {
	ledger LedgerService
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(ledger LedgerService, logger *zap.Logger) ExportService {
	return &exportService{ledger: ledger, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportLeaderboard
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "排行榜"：名次 / 用户 / 用户名 / 积分 / 等级
//   - Sheet "等级表"：等级 / 最低积分 / 当前人数（仅统计导出范围内）

func (s *exportService) ExportLeaderboard(ctx context.Context, limit int, now time.Time) (*bytes.Buffer, string, error) {
	entries, err := s.ledger.Leaderboard(ctx, limit)
	if err != nil {
		return nil, "", err
	}
	if len(entries) == 0 {
		return nil, "", ErrExportEmpty
	}

	f := excelize.NewFile()
	defer f.Close()

	const boardSheet = "排行榜"
	f.SetSheetName("Sheet1", boardSheet)

	f.SetColWidth(boardSheet, "A", "A", 8)
	f.SetColWidth(boardSheet, "B", "B", 40)
	f.SetColWidth(boardSheet, "C", "C", 20)
	f.SetColWidth(boardSheet, "D", "E", 14)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 表头
	headers := []string{"名次", "用户", "用户名", "积分", "等级"}
	for i, h := range headers {
		f.SetCellValue(boardSheet, cell(colName(i), 1), h)
	}
	f.SetCellStyle(boardSheet, "A1", cell(colName(len(headers)-1), 1), headerStyle)

	// 数据行
	tierCount := make(map[string]int)
	for i, e := range entries {
		row := i + 2
		f.SetCellValue(boardSheet, cell("A", row), e.Rank)
		f.SetCellValue(boardSheet, cell("B", row), e.UserID)
		f.SetCellValue(boardSheet, cell("C", row), e.Username)
		f.SetCellValue(boardSheet, cell("D", row), e.Points)
		f.SetCellValue(boardSheet, cell("E", row), e.Tier)
		tierCount[e.Tier]++
	}

	// 等级表
	const tierSheet = "等级表"
	if _, err := f.NewSheet(tierSheet); err != nil {
		s.logger.Error("创建等级表 Sheet 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	f.SetColWidth(tierSheet, "A", "C", 14)
	for i, h := range []string{"等级", "最低积分", "人数"} {
		f.SetCellValue(tierSheet, cell(colName(i), 1), h)
	}
	f.SetCellStyle(tierSheet, "A1", "C1", headerStyle)
	for i, l := range tier.Levels() {
		row := i + 2
		f.SetCellValue(tierSheet, cell("A", row), l.Name)
		f.SetCellValue(tierSheet, cell("B", row), l.MinPoints)
		f.SetCellValue(tierSheet, cell("C", row), tierCount[l.Name])
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("leaderboard_%s.xlsx", now.UTC().Format("20060102"))
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
