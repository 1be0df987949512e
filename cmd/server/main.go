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

	"alpha-chat-go/internal/config"
	"alpha-chat-go/internal/handler"
	"alpha-chat-go/internal/middleware"
	"alpha-chat-go/internal/model"
	"alpha-chat-go/internal/repository"
	"alpha-chat-go/internal/service"
	"alpha-chat-go/pkg/database"
	"alpha-chat-go/pkg/es"
	"alpha-chat-go/pkg/gemini"
	"alpha-chat-go/pkg/kafka"
	"alpha-chat-go/pkg/log"
	"alpha-chat-go/pkg/midtrans"
	"alpha-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatalf("MySQL 初始化失败: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Conversation{}, &model.Message{}, &model.PaymentOrder{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatalf("Redis 初始化失败: %v", err)
	}

	esClient, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		log.Fatalf("es 初始化失败: %v", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db, rdb)
	paymentRepo := repository.NewPaymentRepository(db, rdb)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpireDays)
	llmClient := gemini.NewClient(cfg.Gemini)
	gateway := midtrans.NewClient(cfg.Midtrans)

	gate := service.NewEntitlementGate(userRepo, cfg.Quota)
	userService := service.NewUserService(userRepo, jwtManager, rdb, cfg.Auth)
	convService := service.NewConversationService(convRepo, esClient)
	chatService := service.NewChatService(gate, llmClient, convRepo, esClient, producer)
	paymentService := service.NewPaymentService(paymentRepo, userRepo, gateway, producer, cfg.Midtrans)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService, cfg.Quota)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
	historyHandler := handler.NewHistoryHandler(convService)
	paymentHandler := handler.NewPaymentHandler(paymentService)

	authed := middleware.AuthMiddleware(jwtManager, userService)
	limited := middleware.RateLimit(cfg.RateLimit)

	// 7. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", limited, userHandler.Register)
			auth.POST("/login", limited, userHandler.Login)
			auth.GET("/status", authed, userHandler.Status)
			auth.POST("/logout", authed, userHandler.Logout)
		}

		apiV1.POST("/chat", limited, authed, chatHandler.Chat)
		apiV1.GET("/chat/ws", chatHandler.HandleWS)

		history := apiV1.Group("/history", authed)
		{
			history.GET("", historyHandler.List)
			history.GET("/search", historyHandler.Search)
			history.GET("/:id", historyHandler.Get)
		}

		payments := apiV1.Group("/payments")
		{
			payments.POST("/token", authed, paymentHandler.CreateToken)
			// 网关回调无法携带用户 token，靠签名回查保证可信
			payments.POST("/notify", paymentHandler.Notify)
		}
	}

	// 8. 启动 HTTP 服务器并实现优雅停机
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
