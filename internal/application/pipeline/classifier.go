package pipeline

import (
	"regexp"
	"strings"

	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/pkg/errors"
)

const defaultMaxQuestionRunes = 1000

// currencyPattern 匹配美元金额与百分比（$1,500 / 20% / 50 percent）
var currencyPattern = regexp.MustCompile(`\$\s?\d[\d,]*(\.\d+)?|\b\d+(\.\d+)?\s?(%|percent)\b`)

// 结构化福利表倾向的提示词（费率、金额、schedule 类问题）
var tableAffinityMarkers = []string{
	"how much", "cost", "rate", "schedule", "amount", "fee", "price",
	"pay for", "dollar", "maximum", "limit",
}

// 叙述文本倾向的提示词（条款解释类问题）
var textAffinityMarkers = []string{
	"what happens if", "am i covered", "is it covered", "covered for",
	"what if", "explain", "why", "eligible", "qualify", "allowed",
	"can i", "do i need",
}

// 对比类问题的提示词
var comparativeMarkers = []string{
	" vs ", " versus ", "compare", "difference between", "cheaper",
	"better", "instead of", " or ",
}

// 事实链条类问题的提示词（先满足 X 再看 Y）
var multiHopMarkers = []string{
	"after i meet", "after meeting", "once i", "after my", "if i need",
	"before i", "and then", "what do i pay after", "combined with",
	"count toward", "counts toward",
}

// Classifier 问题意图分类器。纯函数，无副作用。
type Classifier struct {
	maxQuestionRunes int
	lexicon          *lexicon
}

// NewClassifier 创建分类器
func NewClassifier(maxQuestionRunes int) *Classifier {
	if maxQuestionRunes <= 0 {
		maxQuestionRunes = defaultMaxQuestionRunes
	}
	return &Classifier{
		maxQuestionRunes: maxQuestionRunes,
		lexicon:          defaultLexicon,
	}
}

// Classify 解析问题为结构化 Intent。
// 只有输入校验（空/超长）返回硬错误；其余畸形输入得到低置信兜底 Intent。
func (c *Classifier) Classify(q *entity.Question) (*entity.Intent, error) {
	if q == nil || strings.TrimSpace(q.Text) == "" {
		return nil, errors.ErrQueryEmpty
	}
	if len([]rune(q.Text)) > c.maxQuestionRunes {
		return nil, errors.ErrQueryTooLong
	}

	normalized := strings.ToLower(strings.TrimSpace(q.Text))

	intent := &entity.Intent{
		QuestionID: q.ID,
		Entities:   c.lexicon.Match(normalized),
		Affinity:   classifyAffinity(normalized),
		Confidence: 0.9,
	}

	// 金额/百分比出现既是实体也是福利表倾向信号
	for _, m := range currencyPattern.FindAllString(normalized, -1) {
		intent.Entities = append(intent.Entities, entity.ExtractedEntity{
			Kind: entity.EntityKindAmount,
			Text: strings.TrimSpace(m),
		})
	}

	intent.Tier = classifyTier(normalized, intent)

	// 没有任何可识别实体时降为低置信兜底，下游仍可尝试检索
	if len(intent.Entities) == 0 {
		intent.Confidence = 0.3
		intent.Tier = entity.TierSimple
		intent.Affinity = entity.AffinityEither
	}

	return intent, nil
}

// classifyAffinity 判定文档类型倾向
func classifyAffinity(normalized string) entity.DocAffinity {
	table := containsAny(normalized, tableAffinityMarkers) ||
		currencyPattern.MatchString(normalized)
	text := containsAny(normalized, textAffinityMarkers)

	switch {
	case table && !text:
		return entity.AffinityBenefitTable
	case text && !table:
		return entity.AffinityPlanText
	default:
		return entity.AffinityEither
	}
}

// classifyTier 判定复杂度档位。multi-hop 优先于 comparative：
// 链条问题常顺带提到两个类别，但检索策略按链条走收益更大。
func classifyTier(normalized string, intent *entity.Intent) entity.ComplexityTier {
	if containsAny(normalized, multiHopMarkers) {
		return entity.TierMultiHop
	}

	benefitKinds := 0
	for _, e := range intent.Entities {
		if e.Kind == entity.EntityKindBenefit {
			benefitKinds++
		}
	}
	if benefitKinds >= 2 || containsAny(normalized, comparativeMarkers) {
		return entity.TierComparative
	}

	return entity.TierSimple
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
