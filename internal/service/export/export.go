// Package export 导出会话、记忆和用量数据
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/repository"
)

// Format 导出格式
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatMemory   Format = "memory"
	FormatXLSX     Format = "xlsx"
)

var (
	// ErrInvalidFormat 不支持的导出格式
	ErrInvalidFormat = errors.New("invalid format")
	// ErrConversationRequired markdown 导出需要指定会话
	ErrConversationRequired = errors.New("conversation_id is required for markdown export")
)

// File 导出结果
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// ConversationExport 单个会话的导出结构
type ConversationExport struct {
	*model.Conversation
	Messages []*model.Message `json:"messages"`
}

// Service 导出服务
type Service struct {
	chat     repository.ChatStore
	settings repository.SettingsStore
	now      func() time.Time
}

// NewService 创建导出服务
func NewService(chat repository.ChatStore, settings repository.SettingsStore) *Service {
	return &Service{chat: chat, settings: settings, now: time.Now}
}

// Export 按格式导出，conversationID 为空时导出全部会话
func (s *Service) Export(ctx context.Context, ownerID string, format Format, conversationID string) (*File, error) {
	switch format {
	case FormatJSON, "":
		return s.exportJSON(ctx, ownerID, conversationID)
	case FormatMarkdown:
		if conversationID == "" {
			return nil, ErrConversationRequired
		}
		return s.exportMarkdown(ctx, ownerID, conversationID)
	case FormatMemory:
		return s.exportMemory(ctx, ownerID)
	case FormatXLSX:
		return s.exportXLSX(ctx, ownerID, conversationID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
}

// load 并发读取会话和消息，按创建时间升序组装
func (s *Service) load(ctx context.Context, ownerID, conversationID string) ([]*ConversationExport, error) {
	var (
		convs    []*model.Conversation
		messages []*model.Message
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if conversationID != "" {
			conv, err := s.chat.GetConversation(gctx, ownerID, conversationID)
			if err != nil {
				return err
			}
			convs = []*model.Conversation{conv}
			return nil
		}
		var err error
		convs, err = s.chat.ListConversations(gctx, ownerID, "", 0)
		return err
	})
	g.Go(func() error {
		var err error
		if conversationID != "" {
			messages, err = s.chat.ListMessages(gctx, ownerID, conversationID)
		} else {
			messages, err = s.chat.ListAllMessages(gctx, ownerID)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	byConv := make(map[string][]*model.Message, len(convs))
	for _, msg := range messages {
		byConv[msg.ConversationID] = append(byConv[msg.ConversationID], msg)
	}

	result := make([]*ConversationExport, 0, len(convs))
	for _, conv := range convs {
		msgs := byConv[conv.ID]
		if msgs == nil {
			msgs = []*model.Message{}
		}
		result = append(result, &ConversationExport{Conversation: conv, Messages: msgs})
	}
	sortByCreated(result)
	return result, nil
}

func (s *Service) exportJSON(ctx context.Context, ownerID, conversationID string) (*File, error) {
	convs, err := s.load(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	body, err := json.MarshalIndent(convs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return &File{
		Name:        fmt.Sprintf("sanctuary-export-%s.json", s.now().UTC().Format("2006-01-02")),
		ContentType: "application/json",
		Body:        body,
	}, nil
}

func (s *Service) exportMarkdown(ctx context.Context, ownerID, conversationID string) (*File, error) {
	convs, err := s.load(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	conv := convs[0]

	title := conv.Title
	if title == "" {
		title = "Chat"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Created: %s\n\n---\n\n", conv.CreatedAt.UTC().Format(time.RFC3339))
	for _, msg := range conv.Messages {
		role := "Assistant"
		if msg.Role == model.RoleUser {
			role = "You"
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n\n---\n\n", role, msg.ContentText)
	}

	return &File{
		Name:        SanitizeFilename(title) + ".md",
		ContentType: "text/markdown",
		Body:        []byte(b.String()),
	}, nil
}

func (s *Service) exportMemory(ctx context.Context, ownerID string) (*File, error) {
	var markdown string
	note, err := s.settings.GetMemory(ctx, ownerID)
	switch {
	case err == nil:
		markdown = note.Markdown
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}

	return &File{
		Name:        "memory.md",
		ContentType: "text/markdown",
		Body:        []byte(markdown),
	}, nil
}

func (s *Service) exportXLSX(ctx context.Context, ownerID, conversationID string) (*File, error) {
	convs, err := s.load(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
	})

	// 会话表
	convSheet := "Conversations"
	f.SetSheetName("Sheet1", convSheet)
	writeHeader(f, convSheet, headerStyle, []string{"ID", "Title", "Pinned", "Started", "Messages", "Cost (USD)"})
	f.SetColWidth(convSheet, "A", "A", 38)
	f.SetColWidth(convSheet, "B", "B", 40)
	f.SetColWidth(convSheet, "D", "D", 20)

	// 消息表
	msgSheet := "Messages"
	if _, err := f.NewSheet(msgSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	writeHeader(f, msgSheet, headerStyle, []string{"Conversation", "Time", "Role", "Model", "Tokens In", "Tokens Out", "Cost (USD)", "Text"})
	f.SetColWidth(msgSheet, "A", "A", 38)
	f.SetColWidth(msgSheet, "B", "B", 20)
	f.SetColWidth(msgSheet, "H", "H", 80)

	var totalCost float64
	msgRow := 2
	for i, conv := range convs {
		var convCost float64
		for _, msg := range conv.Messages {
			cost := 0.0
			if msg.CostUSD != nil {
				cost = *msg.CostUSD
			}
			convCost += cost

			row := []interface{}{conv.ID, msg.CreatedAt.UTC().Format("2006-01-02 15:04:05"), msg.Role, deref(msg.Model), derefInt(msg.TokenInput), derefInt(msg.TokenOutput), cost, msg.ContentText}
			cell, _ := excelize.CoordinatesToCellName(1, msgRow)
			f.SetSheetRow(msgSheet, cell, &row)
			msgRow++
		}
		totalCost += convCost

		row := []interface{}{conv.ID, conv.Title, conv.Pinned, conv.StartedAt.UTC().Format("2006-01-02 15:04:05"), len(conv.Messages), convCost}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		f.SetSheetRow(convSheet, cell, &row)
	}

	// 合计行
	summaryRow := len(convs) + 2
	f.SetCellValue(convSheet, fmt.Sprintf("A%d", summaryRow), "Total")
	f.SetCellValue(convSheet, fmt.Sprintf("F%d", summaryRow), totalCost)
	f.SetCellStyle(convSheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("F%d", summaryRow), summaryStyle)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write xlsx: %w", err)
	}
	return &File{
		Name:        fmt.Sprintf("sanctuary-export-%s.xlsx", s.now().UTC().Format("2006-01-02")),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Body:        buf.Bytes(),
	}, nil
}

func writeHeader(f *excelize.File, sheet string, style int, headers []string) {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
		f.SetCellStyle(sheet, cell, cell, style)
	}
}

// SanitizeFilename 只保留字母数字和中日文字符，其余替换为下划线
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 0x3040 && r <= 0x30FF, r >= 0x4E00 && r <= 0x9FFF:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "chat"
	}
	return b.String()
}

func sortByCreated(convs []*ConversationExport) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
