package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphTraversalQuery_ScopesEveryArmByTenantAndPlan(t *testing.T) {
	// 种子、两段边展开、递归到达的节点都必须带租户过滤
	assert.Equal(t, 4, strings.Count(graphTraversalQuery, "tenant_id = @tenant_id"))

	// 计划过滤同样覆盖全部分支：种子节点、双向边、递归到达的节点。
	// 缺了任何一处，遍历会跨到同租户其他计划的节点上。
	assert.Equal(t, 4, strings.Count(graphTraversalQuery, "(@plan_id = '' OR"))
	assert.Contains(t, graphTraversalQuery, "nn.plan_id = @plan_id")
	assert.Equal(t, 2, strings.Count(graphTraversalQuery, "r.plan_id = @plan_id"))
}

func TestNormalizeTerms(t *testing.T) {
	terms := normalizeTerms([]string{"  Deductible ", "", "OUT-OF-POCKET maximum", "   "})
	require.Len(t, terms, 2)
	assert.Equal(t, "deductible", terms[0])
	assert.Equal(t, "out-of-pocket maximum", terms[1])
}

func TestHopScore_DecaysWithDistance(t *testing.T) {
	assert.InDelta(t, 0.95, hopScore(0), 0.001)
	assert.Greater(t, hopScore(1), hopScore(2))
	// 远节点分数有下限，不会归零或变负
	assert.InDelta(t, 0.2, hopScore(20), 0.001)
}

func TestGraphExcerpt_FallsBackToPath(t *testing.T) {
	row := graphRow{Name: "deductible", Path: []string{"deductible", "APPLIES_TO", "outpatient surgery"}}
	assert.Equal(t, "deductible -> APPLIES_TO -> outpatient surgery", graphExcerpt(row))

	row.Description = "Annual amount you pay before the plan pays."
	assert.Equal(t, "Annual amount you pay before the plan pays.", graphExcerpt(row))
}
