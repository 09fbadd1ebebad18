// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"benefit-ai-api/internal/application/pipeline"
	"benefit-ai-api/internal/domain/entity"
)

// BenefitGraphRepository 福利关系图仓储。
// 图以邻接表存在 benefit_nodes / benefit_relations 两张表，
// 遍历用递归 CTE 限跳展开，不依赖独立的图数据库。
type BenefitGraphRepository struct {
	client *Client
}

// NewBenefitGraphRepository 创建福利关系图仓储
func NewBenefitGraphRepository(client *Client) *BenefitGraphRepository {
	return &BenefitGraphRepository{client: client}
}

var _ pipeline.RelationshipGraph = (*BenefitGraphRepository)(nil)

// graphTraversalQuery 限跳展开。种子与递归展开两段都同时按租户和计划
// 过滤，防止遍历跨到同租户其他计划的节点上。
const graphTraversalQuery = `
	WITH RECURSIVE walk AS (
		SELECT n.id, 0 AS hops, ARRAY[n.name]::text[] AS path, ARRAY[n.id]::text[] AS visited
		FROM benefit_nodes n
		WHERE n.tenant_id = @tenant_id
			AND (@plan_id = '' OR n.plan_id = @plan_id)
			AND lower(n.name) = ANY(@terms)
		UNION ALL
		SELECT e.next_id, w.hops + 1,
			w.path || e.rel_label || nn.name,
			w.visited || e.next_id
		FROM walk w
		JOIN LATERAL (
			SELECT r.target_node_id AS next_id, r.relation_type::text AS rel_label
			FROM benefit_relations r
			WHERE r.source_node_id = w.id AND r.tenant_id = @tenant_id
				AND (@plan_id = '' OR r.plan_id = @plan_id)
			UNION ALL
			SELECT r.source_node_id AS next_id, r.relation_type::text AS rel_label
			FROM benefit_relations r
			WHERE r.target_node_id = w.id AND r.tenant_id = @tenant_id
				AND (@plan_id = '' OR r.plan_id = @plan_id)
		) e ON TRUE
		JOIN benefit_nodes nn ON nn.id = e.next_id
		WHERE w.hops < @max_hops
			AND nn.tenant_id = @tenant_id
			AND (@plan_id = '' OR nn.plan_id = @plan_id)
			AND NOT e.next_id = ANY(w.visited)
	)
	SELECT DISTINCT ON (n.id) n.id, n.name, n.category, n.description,
		COALESCE(n.document_id::text, '') AS document_id, n.page, n.section,
		w.hops, w.path
	FROM walk w
	JOIN benefit_nodes n ON n.id = w.id
	ORDER BY n.id, w.hops ASC
`

// graphRow 递归遍历结果行
type graphRow struct {
	ID          string         `gorm:"column:id"`
	Name        string         `gorm:"column:name"`
	Category    string         `gorm:"column:category"`
	Description string         `gorm:"column:description"`
	DocumentID  string         `gorm:"column:document_id"`
	Page        int            `gorm:"column:page"`
	Section     string         `gorm:"column:section"`
	Hops        int            `gorm:"column:hops"`
	Path        pq.StringArray `gorm:"column:path;type:text[]"`
}

// Traverse 从起点实体词出发做限跳广度遍历，按跳数升序返回命中节点。
// 起点按节点名小写匹配；遍历跟随出边与入边，同名环路由 ALL 路径数组去重。
func (r *BenefitGraphRepository) Traverse(ctx context.Context, q pipeline.GraphQuery) ([]*entity.EvidenceCandidate, error) {
	if r == nil || r.client == nil {
		return nil, pipeline.ErrGraphDisabled
	}

	terms := normalizeTerms(q.StartTerms)
	if len(terms) == 0 {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "postgres.BenefitGraphRepository.Traverse",
		trace.WithAttributes(
			attribute.String("tenant_id", q.Scope.TenantID),
			attribute.Int("max_hops", q.MaxHops),
		))
	defer span.End()

	maxHops := q.MaxHops
	if maxHops <= 0 {
		maxHops = 3
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var rows []graphRow
	err := r.client.db.WithContext(ctx).Raw(graphTraversalQuery,
		map[string]any{
			"tenant_id": q.Scope.TenantID,
			"plan_id":   q.Scope.PlanID,
			"terms":     pq.Array(terms),
			"max_hops":  maxHops,
		}).Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("graph traversal failed: %w", err)
	}

	// 跳数升序，近节点优先
	sortRowsByHops(rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}

	cands := make([]*entity.EvidenceCandidate, 0, len(rows))
	for _, row := range rows {
		cands = append(cands, &entity.EvidenceCandidate{
			Source:      entity.SourceGraph,
			DocumentID:  row.DocumentID,
			Excerpt:     graphExcerpt(row),
			Score:       hopScore(row.Hops),
			BenefitTerm: strings.ToLower(strings.TrimSpace(row.Name)),
			Page:        row.Page,
			Section:     row.Section,
			Graph: &entity.GraphProvenance{
				PathLength: row.Hops,
				Path:       []string(row.Path),
				NodeID:     row.ID,
			},
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(cands)))
	return cands, nil
}

// SaveNodes 写入图节点（索引/引导链路使用）
func (r *BenefitGraphRepository) SaveNodes(ctx context.Context, nodes []*entity.BenefitNode) error {
	if r == nil || r.client == nil {
		return pipeline.ErrGraphDisabled
	}
	if len(nodes) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "postgres.BenefitGraphRepository.SaveNodes")
	defer span.End()

	if err := r.client.db.WithContext(ctx).CreateInBatches(nodes, 200).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save benefit nodes: %w", err)
	}
	return nil
}

// SaveRelations 写入图边
func (r *BenefitGraphRepository) SaveRelations(ctx context.Context, relations []*entity.BenefitRelation) error {
	if r == nil || r.client == nil {
		return pipeline.ErrGraphDisabled
	}
	if len(relations) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "postgres.BenefitGraphRepository.SaveRelations")
	defer span.End()

	if err := r.client.db.WithContext(ctx).CreateInBatches(relations, 200).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save benefit relations: %w", err)
	}
	return nil
}

// Migrate 建表（引导链路使用）
func (r *BenefitGraphRepository) Migrate(ctx context.Context) error {
	if r == nil || r.client == nil {
		return pipeline.ErrGraphDisabled
	}
	return r.client.db.WithContext(ctx).AutoMigrate(
		&entity.BenefitNode{},
		&entity.BenefitRelation{},
		&ChunkRecord{},
	)
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// graphExcerpt 图命中的文本摘录：节点描述优先，否则用路径描述兜底
func graphExcerpt(row graphRow) string {
	if d := strings.TrimSpace(row.Description); d != "" {
		return d
	}
	if len(row.Path) > 0 {
		return strings.Join(row.Path, " -> ")
	}
	return row.Name
}

// hopScore 跳数映射为相关度：直接命中 0.95，每跳递减
func hopScore(hops int) float64 {
	score := 0.95 - 0.15*float64(hops)
	if score < 0.2 {
		return 0.2
	}
	return score
}

func sortRowsByHops(rows []graphRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Hops < rows[j].Hops
	})
}
