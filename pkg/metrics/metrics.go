// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "benefit_qa"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 业务指标 - 问答流水线
	PipelineQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queries_total",
			Help:      "Total number of answered queries",
		},
		[]string{"tenant_id", "state"}, // state: completed/degraded/failed
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 15},
		},
		[]string{"stage"}, // stage: classify/retrieve/fuse/synthesize
	)

	PipelineEvidenceCount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "evidence_count",
			Help:      "Number of ranked evidence items per query",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
		[]string{"tenant_id"},
	)

	PipelineAnswerConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "answer_confidence",
			Help:      "Final answer confidence distribution",
			Buckets:   []float64{0, .1, .25, .5, .65, .8, .9, 1},
		},
		[]string{"tenant_id"},
	)

	// 检索源指标
	RetrievalSourceCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "source_candidates",
			Help:      "Candidates returned per retrieval source",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"source"}, // source: vector/keyword/graph
	)

	RetrievalSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "source_failures_total",
			Help:      "Retrieval source failures absorbed by degradation",
		},
		[]string{"source", "reason"}, // reason: timeout/unavailable/error
	)

	// LLM 指标
	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for LLM calls",
		},
		[]string{"provider", "model", "type"}, // type: prompt/completion
	)

	LLMFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "fallback_total",
			Help:      "Template fallbacks after generation failures",
		},
	)
)
