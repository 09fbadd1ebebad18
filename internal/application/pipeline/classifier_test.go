package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/pkg/errors"
)

func newQuestion(text string) *entity.Question {
	return entity.NewQuestion("q-1", text, entity.TenantScope{TenantID: "tenant-1", PlanID: "plan-1"})
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(0)

	tests := []struct {
		name         string
		text         string
		wantTier     entity.ComplexityTier
		wantAffinity entity.DocAffinity
		wantKinds    []entity.EntityKind
	}{
		{
			name:         "simple cost question leans benefit table",
			text:         "How much is my copay for a specialist visit?",
			wantTier:     entity.TierSimple,
			wantAffinity: entity.AffinityBenefitTable,
			wantKinds:    []entity.EntityKind{entity.EntityKindBenefit, entity.EntityKindProvider},
		},
		{
			name:         "coverage question leans plan text",
			text:         "Am I covered for physical therapy after surgery?",
			wantTier:     entity.TierSimple,
			wantAffinity: entity.AffinityPlanText,
			wantKinds:    []entity.EntityKind{entity.EntityKindProcedure},
		},
		{
			name:      "two benefit categories make it comparative",
			text:      "What is the difference between my deductible and my out-of-pocket maximum?",
			wantTier:  entity.TierComparative,
			wantKinds: []entity.EntityKind{entity.EntityKindBenefit},
		},
		{
			name:         "chained dependency is multi hop",
			text:         "What do I pay for an MRI after I meet my deductible?",
			wantTier:     entity.TierMultiHop,
			wantKinds:    []entity.EntityKind{entity.EntityKindBenefit, entity.EntityKindProcedure},
		},
		{
			name:     "dollar amount extracted as amount entity",
			text:     "Is the $1,500 deductible waived for preventive care?",
			wantTier: entity.TierSimple,
			wantKinds: []entity.EntityKind{
				entity.EntityKindBenefit, entity.EntityKindAmount,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := c.Classify(newQuestion(tt.text))
			require.NoError(t, err)
			require.NotNil(t, intent)

			assert.Equal(t, tt.wantTier, intent.Tier)
			if tt.wantAffinity != "" {
				assert.Equal(t, tt.wantAffinity, intent.Affinity)
			}
			for _, kind := range tt.wantKinds {
				assert.NotEmpty(t, intent.EntitiesOfKind(kind), "expected entity of kind %s", kind)
			}
			assert.GreaterOrEqual(t, intent.Confidence, 0.5)
		})
	}
}

func TestClassifier_Classify_ValidationErrors(t *testing.T) {
	c := NewClassifier(50)

	_, err := c.Classify(newQuestion("   "))
	assert.ErrorIs(t, err, errors.ErrQueryEmpty)

	_, err = c.Classify(nil)
	assert.ErrorIs(t, err, errors.ErrQueryEmpty)

	_, err = c.Classify(newQuestion(strings.Repeat("deductible ", 20)))
	assert.ErrorIs(t, err, errors.ErrQueryTooLong)
}

func TestClassifier_Classify_UnrecognizedFallsBack(t *testing.T) {
	c := NewClassifier(0)

	intent, err := c.Classify(newQuestion("zzzz qwerty foobar"))
	require.NoError(t, err)

	assert.Empty(t, intent.Entities)
	assert.Equal(t, entity.TierSimple, intent.Tier)
	assert.Equal(t, entity.AffinityEither, intent.Affinity)
	assert.InDelta(t, 0.3, intent.Confidence, 0.001)
}

func TestClassifier_MultiHopBeatsComparative(t *testing.T) {
	c := NewClassifier(0)

	// 链条问题顺带提了两个福利类别，仍按 multi-hop 处理
	intent, err := c.Classify(newQuestion("Once I meet the deductible does coinsurance count toward my out-of-pocket maximum?"))
	require.NoError(t, err)
	assert.Equal(t, entity.TierMultiHop, intent.Tier)
}

func TestLexicon_LongPhraseWins(t *testing.T) {
	matched := defaultLexicon.Match("does my out-of-pocket maximum include copays")

	var texts []string
	for _, e := range matched {
		texts = append(texts, e.Text)
	}
	assert.Contains(t, texts, "out-of-pocket maximum")
	assert.NotContains(t, texts, "out of pocket")
}
