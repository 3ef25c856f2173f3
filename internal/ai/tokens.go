package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

// EstimateTokens 估算文本的 Token 数量
// 模型无对应编码时回退到 cl100k_base；估算失败返回0，仅影响指标不影响主流程
func EstimateTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0
		}
	}
	return len(enc.Encode(text, nil, nil))
}
