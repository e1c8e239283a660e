// Package catalog 维护可选模型及其价格
package catalog

import "fmt"

// DefaultModelID 未指定模型时使用
const DefaultModelID = "gpt-4o-2024-11-20"

// ModelOption 可选模型
type ModelOption struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	InputPrice  float64 `json:"input_price_per_million"`
	OutputPrice float64 `json:"output_price_per_million"`
	Default     bool    `json:"default"`
}

// Models 模型目录，价格单位为美元每百万 token
var Models = []ModelOption{
	{
		ID:          "gpt-4o-2024-05-13",
		Label:       "GPT-4o (May 2024)",
		Description: "The original GPT-4o release",
		InputPrice:  5,
		OutputPrice: 15,
	},
	{
		ID:          "gpt-4o-2024-11-20",
		Label:       "GPT-4o (Nov 2024)",
		Description: "Latest GPT-4o snapshot",
		InputPrice:  2.5,
		OutputPrice: 10,
		Default:     true,
	},
	{
		ID:          "chatgpt-4o-latest",
		Label:       "ChatGPT-4o Latest",
		Description: "Model currently used in ChatGPT",
		InputPrice:  5,
		OutputPrice: 15,
	},
}

// Lookup 按 ID 查找模型
func Lookup(id string) (ModelOption, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelOption{}, false
}

// IsKnown 模型是否在目录中
func IsKnown(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// ComputeCost 计算一次调用的费用
//
// 模型不在目录中时返回 ok=false，调用方应展示为 "unknown" 而不是 0。
func ComputeCost(modelID string, inputTokens, outputTokens int) (cost float64, ok bool) {
	m, ok := Lookup(modelID)
	if !ok {
		return 0, false
	}
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	cost = float64(inputTokens)/1_000_000*m.InputPrice + float64(outputTokens)/1_000_000*m.OutputPrice
	return cost, true
}

// FormatCost 格式化费用
func FormatCost(cost float64, ok bool) string {
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("$%.6f", cost)
}
