package pipeline

import (
	"strings"

	"benefit-ai-api/internal/domain/entity"
)

// lexicon 分类器使用的医疗/福利词表。
// 词表按词形匹配，多词短语优先于单词命中，全部小写。
type lexicon struct {
	terms map[string]entity.EntityKind
	// phrases 按长度（词数）降序排列的多词短语
	phrases []string
}

// 默认词表。覆盖客服问答里最常见的术语；
// 租户专有术语走图节点名，不需要扩充这里。
var defaultLexicon = newLexicon(map[entity.EntityKind][]string{
	entity.EntityKindProcedure: {
		"mri", "x-ray", "ct scan", "colonoscopy", "mammogram", "blood test",
		"physical therapy", "surgery", "outpatient surgery", "biopsy",
		"vaccination", "immunization", "dialysis", "chemotherapy",
		"ultrasound", "lab work", "annual physical", "well visit",
	},
	entity.EntityKindCondition: {
		"diabetes", "hypertension", "asthma", "cancer", "pregnancy",
		"depression", "anxiety", "arthritis", "allergy", "obesity",
		"heart disease", "high blood pressure",
	},
	entity.EntityKindMedication: {
		"insulin", "generic drug", "brand drug", "specialty drug",
		"prescription", "inhaler", "statin",
	},
	entity.EntityKindProvider: {
		"primary care", "specialist", "urgent care", "emergency room",
		"er", "chiropractor", "therapist", "pharmacy", "hospital",
		"in-network", "out-of-network", "telehealth",
	},
	entity.EntityKindBenefit: {
		"deductible", "copay", "copayment", "coinsurance",
		"out-of-pocket maximum", "out of pocket", "premium", "coverage",
		"prior authorization", "preauthorization", "referral",
		"annual limit", "visit limit", "benefit", "claim",
	},
})

func newLexicon(byKind map[entity.EntityKind][]string) *lexicon {
	lx := &lexicon{terms: make(map[string]entity.EntityKind)}
	for kind, words := range byKind {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			lx.terms[w] = kind
			if strings.Contains(w, " ") {
				lx.phrases = append(lx.phrases, w)
			}
		}
	}
	// 长短语优先，避免 "out-of-pocket maximum" 被 "out of pocket" 截胡
	for i := 0; i < len(lx.phrases); i++ {
		for j := i + 1; j < len(lx.phrases); j++ {
			if len(lx.phrases[j]) > len(lx.phrases[i]) {
				lx.phrases[i], lx.phrases[j] = lx.phrases[j], lx.phrases[i]
			}
		}
	}
	return lx
}

// Match 在归一化文本中查找词表命中，返回去重后的抽取实体。
func (lx *lexicon) Match(normalized string) []entity.ExtractedEntity {
	var out []entity.ExtractedEntity
	seen := make(map[string]bool)
	remaining := normalized

	// 先扫多词短语，命中后从剩余文本剔除，避免子词重复命中
	for _, p := range lx.phrases {
		if strings.Contains(remaining, p) {
			if !seen[p] {
				seen[p] = true
				out = append(out, entity.ExtractedEntity{Kind: lx.terms[p], Text: p})
			}
			remaining = strings.ReplaceAll(remaining, p, " ")
		}
	}

	// 再按词扫单词项
	for _, w := range strings.Fields(remaining) {
		w = strings.Trim(w, ".,;:?!\"'()")
		if w == "" || seen[w] {
			continue
		}
		if kind, ok := lx.terms[w]; ok {
			seen[w] = true
			out = append(out, entity.ExtractedEntity{Kind: kind, Text: w})
		}
	}

	return out
}
