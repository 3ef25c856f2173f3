package course

import (
	"bytes"
	"encoding/json"
	"fmt"

	"backend/internal/workflow"

	"github.com/pmezard/go-difflib/difflib"
)

// CompareArtifacts 比较同一产物的两个版本，输出统一 diff
// 先把 JSON 负载格式化，保证逐行对比稳定
func CompareArtifacts(from, to *workflow.ContentArtifact) (string, error) {
	if from.ContentType != to.ContentType {
		return "", fmt.Errorf("产物类型不一致: %s vs %s", from.ContentType, to.ContentType)
	}

	fromText, err := prettyJSON(from.Content)
	if err != nil {
		return "", fmt.Errorf("格式化旧版本失败: %w", err)
	}
	toText, err := prettyJSON(to.Content)
	if err != nil {
		return "", fmt.Errorf("格式化新版本失败: %w", err)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(fromText),
		B:        difflib.SplitLines(toText),
		FromFile: fmt.Sprintf("%s v%d", from.ContentType, from.Version),
		ToFile:   fmt.Sprintf("%s v%d", to.ContentType, to.Version),
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("生成差异失败: %w", err)
	}
	return text, nil
}

func prettyJSON(raw []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}
