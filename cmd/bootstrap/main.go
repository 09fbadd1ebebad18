// Package main 系统初始化：建表、建 Milvus 集合、导入福利图种子数据
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/internal/infrastructure/persistence/milvus"
	"benefit-ai-api/internal/infrastructure/persistence/postgres"
)

// graphSeed 福利图种子文件格式
type graphSeed struct {
	Nodes     []*entity.BenefitNode     `json:"nodes"`
	Relations []*entity.BenefitRelation `json:"relations"`
}

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 1. PostgreSQL 建表
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer func() { _ = pgClient.Close() }()

	graphRepo := postgres.NewBenefitGraphRepository(pgClient)
	if err := graphRepo.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate postgres schema: %v", err)
	}
	fmt.Println("Postgres schema migrated.")

	// 2. Milvus 集合与索引（可选，连不上只提示）
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		fmt.Printf("Milvus unavailable, skipping collection setup: %v\n", err)
	} else {
		defer func() { _ = milvusClient.Close() }()
		repo := milvus.NewRepository(milvusClient)
		if err := repo.EnsureBenefitChunksCollection(ctx); err != nil {
			log.Fatalf("failed to ensure milvus collection: %v", err)
		}
		fmt.Println("Milvus collection ready.")
	}

	// 3. 福利图种子数据（可选）
	seedPath := os.Getenv("BOOTSTRAP_GRAPH_SEED")
	if seedPath == "" {
		fmt.Println("No graph seed configured, skipping.")
		fmt.Println("Bootstrap completed successfully.")
		return
	}

	raw, err := os.ReadFile(seedPath)
	if err != nil {
		log.Fatalf("failed to read graph seed %s: %v", seedPath, err)
	}

	var seed graphSeed
	if err := json.Unmarshal(raw, &seed); err != nil {
		log.Fatalf("failed to parse graph seed: %v", err)
	}

	if len(seed.Nodes) > 0 {
		if err := graphRepo.SaveNodes(ctx, seed.Nodes); err != nil {
			log.Fatalf("failed to save benefit nodes: %v", err)
		}
		fmt.Printf("Imported %d benefit nodes.\n", len(seed.Nodes))
	}
	if len(seed.Relations) > 0 {
		if err := graphRepo.SaveRelations(ctx, seed.Relations); err != nil {
			log.Fatalf("failed to save benefit relations: %v", err)
		}
		fmt.Printf("Imported %d benefit relations.\n", len(seed.Relations))
	}

	fmt.Println("Bootstrap completed successfully.")
}
