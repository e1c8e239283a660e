// Package usage 汇总每月的 token 用量和费用
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/repository"
)

// ErrInvalidPeriod 年月无效
var ErrInvalidPeriod = errors.New("invalid year or month")

// unknownModel 没有记录模型的消息归入此项
const unknownModel = "unknown"

// ModelUsage 单个模型的用量
type ModelUsage struct {
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Cost      float64 `json:"cost"`
	Count     int     `json:"count"`
}

// Report 月度报告
type Report struct {
	TotalCost      float64                `json:"totalCost"`
	ModelBreakdown map[string]*ModelUsage `json:"modelBreakdown"`
	DailyBreakdown map[string]float64     `json:"dailyBreakdown"`
	Year           int                    `json:"year"`
	Month          int                    `json:"month"`
}

// Service 用量服务
type Service struct {
	repo repository.ChatStore
	now  func() time.Time
}

// NewService 创建用量服务
func NewService(repo repository.ChatStore) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Monthly 汇总某月助手消息的用量，year 或 month 为 0 时取当前月（UTC）
func (s *Service) Monthly(ctx context.Context, ownerID string, year, month int) (*Report, error) {
	now := s.now().UTC()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 || year < 1970 || year > 9999 {
		return nil, fmt.Errorf("%w: %d-%d", ErrInvalidPeriod, year, month)
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	messages, err := s.repo.ListAssistantMessagesBetween(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	return Aggregate(messages, year, month), nil
}

// Aggregate 按模型和日期汇总
func Aggregate(messages []*model.Message, year, month int) *Report {
	report := &Report{
		ModelBreakdown: map[string]*ModelUsage{},
		DailyBreakdown: map[string]float64{},
		Year:           year,
		Month:          month,
	}

	for _, msg := range messages {
		name := unknownModel
		if msg.Model != nil && *msg.Model != "" {
			name = *msg.Model
		}
		entry, ok := report.ModelBreakdown[name]
		if !ok {
			entry = &ModelUsage{}
			report.ModelBreakdown[name] = entry
		}

		var cost float64
		if msg.CostUSD != nil {
			cost = *msg.CostUSD
		}
		if msg.TokenInput != nil {
			entry.TokensIn += *msg.TokenInput
		}
		if msg.TokenOutput != nil {
			entry.TokensOut += *msg.TokenOutput
		}
		entry.Cost += cost
		entry.Count++

		report.TotalCost += cost
		day := msg.CreatedAt.UTC().Format("2006-01-02")
		report.DailyBreakdown[day] += cost
	}
	return report
}
