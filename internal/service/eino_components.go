package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/ashwinyue/sanctuary/internal/config"
	"github.com/ashwinyue/sanctuary/internal/service/catalog"
)

// NewChatModel 创建上游 ChatModel
//
// 每次请求通过 model.WithModel 指定目录中的模型，这里的 Model 只是兜底。
func NewChatModel(ctx context.Context, cfg *config.AIConfig) (einomodel.BaseChatModel, error) {
	switch cfg.Provider {
	case "openai", "":
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: openai")
	}

	modelName := cfg.OpenAI.Model
	if modelName == "" {
		modelName = catalog.DefaultModelID
	}

	var timeout time.Duration
	if cfg.OpenAI.Timeout > 0 {
		timeout = time.Duration(cfg.OpenAI.Timeout) * time.Second
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   modelName,
		Timeout: timeout,
	})
}
