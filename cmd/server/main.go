// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aifm-comply-go/internal/classifier"
	"aifm-comply-go/internal/config"
	"aifm-comply-go/internal/handler"
	"aifm-comply-go/internal/middleware"
	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/parser"
	"aifm-comply-go/internal/pipeline"
	"aifm-comply-go/internal/repository"
	"aifm-comply-go/internal/service"
	"aifm-comply-go/pkg/database"
	"aifm-comply-go/pkg/embedding"
	"aifm-comply-go/pkg/es"
	"aifm-comply-go/pkg/kafka"
	"aifm-comply-go/pkg/llm"
	"aifm-comply-go/pkg/log"
	"aifm-comply-go/pkg/storage"
	"aifm-comply-go/pkg/tika"

	"github.com/gin-gonic/gin"
)

// minioBlobStore 把对象存储适配为管道的 BlobStore。
type minioBlobStore struct {
	bucket string
}

func (b *minioBlobStore) GetFile(ctx context.Context, key string) ([]byte, error) {
	return storage.GetFile(ctx, b.bucket, key)
}

// esTextIndex 把 Elasticsearch 适配为管道的 TextIndex。
type esTextIndex struct {
	indexName string
}

func (t *esTextIndex) Index(ctx context.Context, doc model.EsDocument) error {
	return es.IndexDocument(ctx, t.indexName, doc)
}

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、Elasticsearch 和 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 3.1 同步表结构
	if err := database.DB.AutoMigrate(
		&model.Document{},
		&model.Policy{},
		&model.ComplianceCheck{},
		&model.AuditLog{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 4. 初始化 Repository
	documentRepo := repository.NewDocumentRepository(database.DB)
	policyRepo := repository.NewPolicyRepository(database.DB)
	checkRepo := repository.NewComplianceCheckRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	docParser := parser.New(tikaClient)
	docClassifier := classifier.New(llmClient, cfg.Classifier.UseAI)

	documentService := service.NewDocumentService(documentRepo, auditRepo)
	policyService := service.NewPolicyService(policyRepo)
	searchService := service.NewSearchService(documentRepo, embeddingClient)
	ragService := service.NewRAGService(searchService, llmClient)
	complianceService := service.NewComplianceService(documentRepo, policyRepo, checkRepo, auditRepo, llmClient)
	gapService := service.NewGapService(documentRepo, policyRepo, checkRepo)

	// 6. 初始化文档索引管道 (Processor)
	processor := pipeline.NewProcessor(
		docParser,
		docClassifier,
		embeddingClient,
		documentRepo,
		auditRepo,
		&minioBlobStore{bucket: cfg.MinIO.BucketName},
		&esTextIndex{indexName: cfg.Elasticsearch.IndexName},
		pipeline.NewRedisLocker(database.RDB),
		complianceService,
		cfg.Compliance.AutoCheck,
	)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	documentHandler := handler.NewDocumentHandler(documentService)
	complianceHandler := handler.NewComplianceHandler(complianceService, gapService)

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/stats", documentHandler.Stats)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/history", documentHandler.History)
			documents.POST("/:id/reindex", documentHandler.Reindex)
			documents.POST("/:id/archive", documentHandler.Archive)

			documents.POST("/:id/check", complianceHandler.CheckAll)
			documents.POST("/:id/check/:policyId", complianceHandler.CheckPolicy)
			documents.GET("/:id/compliance", complianceHandler.Status)
		}

		policies := apiV1.Group("/policies")
		{
			policyHandler := handler.NewPolicyHandler(policyService)
			policies.POST("", policyHandler.Create)
			policies.GET("", policyHandler.List)
			policies.GET("/:id", policyHandler.Get)
			policies.PUT("/:id", policyHandler.Update)
			policies.PUT("/:id/active", policyHandler.SetActive)
			policies.DELETE("/:id", policyHandler.Delete)
		}

		search := apiV1.Group("/search")
		{
			searchHandler := handler.NewSearchHandler(searchService)
			search.GET("/vector", searchHandler.VectorSearch)
			search.GET("/keyword", searchHandler.KeywordSearch)
		}

		apiV1.POST("/ask", handler.NewRAGHandler(ragService).Ask)

		apiV1.GET("/gaps", complianceHandler.AnalyzeGaps)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已退出")
}
