package pipeline

import (
	"fmt"
	"strings"

	"benefit-ai-api/internal/domain/entity"
)

// BuildEvidenceContext 将排序后的证据格式化为可直接注入 Prompt 的块。
// 编号 [n] 与证据下标一一对应，生成侧按编号引用，合成层再解析回引用。
// 约束：尽量短，避免把 score 等调试信息塞进 Prompt。
func BuildEvidenceContext(evidence []*entity.RankedEvidence, maxRunesPerItem int) string {
	if len(evidence) == 0 {
		return ""
	}
	if maxRunesPerItem <= 0 {
		maxRunesPerItem = 400
	}

	lines := make([]string, 0, len(evidence)+1)
	lines = append(lines, "Plan evidence (cite by number, answer only from this):")
	for i, e := range evidence {
		txt := compactOneLine(e.Excerpt)
		txt = truncateRunes(txt, maxRunesPerItem)
		if strings.TrimSpace(txt) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%d] (%s) %s", i+1, evidenceRef(e), txt))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// evidenceRef 生成证据的定位描述
func evidenceRef(e *entity.RankedEvidence) string {
	if e.HasSource(entity.SourceGraph) && e.DocumentID == "" {
		return fmt.Sprintf("Graph:%s", strings.TrimSpace(e.BenefitTerm))
	}
	parts := make([]string, 0, 3)
	if doc := strings.TrimSpace(e.DocumentID); doc != "" {
		parts = append(parts, "Doc:"+doc)
	}
	if e.Page > 0 {
		parts = append(parts, fmt.Sprintf("p.%d", e.Page))
	}
	if sec := strings.TrimSpace(e.Section); sec != "" {
		parts = append(parts, sec)
	}
	if len(parts) == 0 {
		return "Context"
	}
	return strings.Join(parts, " ")
}

func compactOneLine(s string) string {
	out := strings.ReplaceAll(s, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = strings.ReplaceAll(out, "\n", " ")
	out = strings.TrimSpace(out)
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
