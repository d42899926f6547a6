package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"citizen-system/config"
	"citizen-system/internal/handler"
	"citizen-system/internal/repository"
	"citizen-system/internal/service"
	"citizen-system/internal/worker"
	"citizen-system/pkg/avatar"
	dbPkg "citizen-system/pkg/db"
	"citizen-system/pkg/face"
	"citizen-system/pkg/jwt"
	"citizen-system/pkg/llm"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/metrics"
	"citizen-system/pkg/queue"
	redisPkg "citizen-system/pkg/redis"
	"citizen-system/pkg/response"
	"citizen-system/pkg/retry"
	"citizen-system/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// vendors 外部服务适配器
type vendors struct {
	faces     service.FaceIndexer
	avatars   service.AvatarGenerator
	nicknames service.NicknameGenerator
	scorer    service.TextScorer
}

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	// 2. 初始化日志系统
	log := logger.InitLogger(cfg.Log)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("配置无效", zap.Error(err))
	}

	log.Info("=== 公民注册系统启动 ===")
	log.Info("服务器配置信息",
		zap.String("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Database),
		zap.String("queue_url", cfg.Queue.URL),
		zap.Bool("queue_local", cfg.Queue.Local),
		zap.Bool("mock_avatar", cfg.Vendors.Avatar.Mock),
		zap.Bool("mock_face", cfg.Vendors.Face.Mock),
		zap.Bool("mock_llm", cfg.Vendors.LLM.Mock),
		zap.String("log_level", cfg.Log.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库连接
	db, err := dbPkg.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.CloseDB(); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	if err := repository.Migrate(db); err != nil {
		log.Fatal("自动迁移失败", zap.Error(err))
	}
	log.Info("数据库连接成功，迁移完成")

	// 4. 初始化Redis
	rdb, err := redisPkg.InitRedis(cfg.Redis)
	if err != nil {
		log.Fatal("Redis连接失败", zap.Error(err))
	}
	defer redisPkg.Close()
	progress := redisPkg.NewProgressStore(rdb, cfg.Redis.ProgressTTL)

	// 5. 外部服务
	v, err := buildVendors(ctx, cfg)
	if err != nil {
		log.Fatal("初始化外部服务失败", zap.Error(err))
	}

	// 6. 任务队列
	var (
		publisher service.JobPublisher
		natsQueue *queue.NATS
		local     *queue.Local
	)
	if cfg.Queue.Local {
		local = queue.NewLocal(cfg.Queue.MaxDeliver, cfg.Retry.Delay)
		publisher = local
		log.Info("使用本地队列")
	} else {
		natsQueue, err = queue.ConnectNATS(cfg.Queue)
		if err != nil {
			log.Fatal("NATS连接失败", zap.Error(err))
		}
		defer natsQueue.Close()
		publisher = natsQueue
	}

	// 7. 初始化业务服务
	m := metrics.New()
	policy := retry.FromConfig(cfg.Retry)
	policy.OnAttempt = m.RetryHook

	profileRepo := repository.NewProfileRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	moderationRepo := repository.NewModerationRepository(db)

	activationSvc := service.NewActivationService(service.ActivationDeps{
		Profiles:      profileRepo,
		Avatars:       v.avatars,
		Faces:         v.faces,
		Nicknames:     service.NewNicknameService(v.nicknames, profileRepo, policy, cfg.Vendors.Timeout),
		Progress:      progress,
		Metrics:       m,
		Styles:        cfg.Styles,
		Policy:        policy,
		VendorTimeout: cfg.Vendors.Timeout,
		StaleAfter:    cfg.Activation.StaleAfter,
	})
	moderationSvc := service.NewModerationService(service.ModerationDeps{
		Comments:      commentRepo,
		Moderation:    moderationRepo,
		Scorer:        v.scorer,
		Metrics:       m,
		Policy:        policy,
		PassScore:     cfg.Moderation.PassScore,
		BanThreshold:  cfg.Moderation.BanThreshold,
		VendorTimeout: cfg.Vendors.Timeout,
	})
	registrationSvc, err := service.NewRegistrationService(profileRepo, v.faces, publisher, cfg)
	if err != nil {
		log.Fatal("初始化注册服务失败", zap.Error(err))
	}
	commentSvc := service.NewCommentService(commentRepo, profileRepo, publisher, policy, cfg.Moderation.MaxBodyLength)

	dispatcher := worker.NewDispatcher(activationSvc, moderationSvc, m, cfg.Activation.JobTimeout)
	if local != nil {
		local.Bind(dispatcher.Handle)
	}

	jwtSvc := jwt.NewJWTService(cfg.JWT)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc, progress)
	commentHandler := handler.NewCommentHandler(commentSvc)
	jobHandler := handler.NewJobHandler(dispatcher)
	wsManager := websocket.NewManager()
	wsHandler := websocket.NewHandler(progress, wsManager, cfg.WebSocket)

	// 8. 设置Gin模式
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 9. 创建Gin路由
	router := gin.New()
	router.Use(logger.RequestLogger())         // 请求日志中间件
	router.Use(logger.ErrorLoggerMiddleware()) // panic恢复中间件

	setupBasicRoutes(router, natsQueue)

	v1 := router.Group("/api/v1")
	{
		// 注册与进度（公开接口）
		registrations := v1.Group("/registrations")
		{
			registrations.POST("", registrationHandler.Register)
			registrations.GET("/:id", registrationHandler.GetRegistration)
			registrations.GET("/:id/progress", registrationHandler.GetProgress)
		}

		// 支付回调（HMAC签名）
		v1.POST("/webhooks/payment", registrationHandler.PaymentWebhook)

		// 话题评论
		comments := v1.Group("/topics/:topic_id/comments")
		{
			comments.GET("", commentHandler.ListComments)
			comments.POST("", jwtSvc.AuthMiddleware(), commentHandler.CreateComment)
		}

		// 队列推送入口
		jobs := v1.Group("/jobs")
		if cfg.Queue.VerifySignature {
			jobs.Use(jwt.SignatureMiddleware(jwt.NewQueueSigner(cfg.Queue.SigningKey)))
		}
		{
			jobs.POST("/activation", jobHandler.Activation)
			jobs.POST("/moderation", jobHandler.Moderation)
		}
	}

	// WebSocket进度推送
	router.GET("/ws/progress", jwtSvc.QueryTokenMiddleware(), wsHandler.Serve)

	// 10. 创建HTTP服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP服务器启动", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if natsQueue != nil && cfg.Queue.Consume {
		g.Go(func() error {
			return natsQueue.Consume(gctx, dispatcher.Handle)
		})
	}

	// 11. 优雅关闭
	g.Go(func() error {
		<-gctx.Done()
		log.Info("正在关闭服务器...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		wsManager.CloseAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP服务器关闭失败", zap.Error(err))
		}
		// 等待进行中的激活任务
		jobHandler.Wait()
		if local != nil {
			local.Wait()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("服务异常退出", zap.Error(err))
	}
	log.Info("服务器已安全关闭")
}

// buildVendors 按配置选择模拟实现或真实服务
func buildVendors(ctx context.Context, cfg *config.Config) (vendors, error) {
	var v vendors
	httpClient := &http.Client{Timeout: cfg.Vendors.Timeout}

	if cfg.Vendors.Face.Mock {
		v.faces = face.NewMock(cfg.Vendors.Face.MockDelay)
	} else {
		rek, err := face.NewRekognition(ctx, cfg.Vendors.Face, httpClient)
		if err != nil {
			return v, err
		}
		v.faces = rek
	}

	if cfg.Vendors.Avatar.Mock {
		v.avatars = avatar.NewMock(cfg.Vendors.Avatar.MockDelay)
	} else {
		v.avatars = avatar.NewHTTPGenerator(cfg.Vendors.Avatar, cfg.Vendors.Timeout)
	}

	if cfg.Vendors.LLM.Mock {
		v.nicknames = llm.MockNicknames{}
		v.scorer = llm.NewMockScorer()
	} else {
		client := llm.NewOpenAI(cfg.Vendors.LLM)
		v.nicknames = client
		v.scorer = client
	}
	return v, nil
}

// setupBasicRoutes 设置基础路由
func setupBasicRoutes(router *gin.Engine, natsQueue *queue.NATS) {
	// 健康检查
	// 完整url为：http://localhost:8080/health
	router.GET("/health", func(c *gin.Context) {
		checks := gin.H{"db": "ok", "redis": "ok"}
		healthy := true
		if err := dbPkg.HealthCheck(); err != nil {
			checks["db"] = "down"
			healthy = false
		}
		if err := redisPkg.HealthCheck(c.Request.Context()); err != nil {
			checks["redis"] = "down"
			healthy = false
		}
		if natsQueue != nil {
			checks["queue"] = "ok"
			if !natsQueue.Healthy() {
				checks["queue"] = "down"
				healthy = false
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		response.WithStatus(c, status, "公民注册系统运行状态", gin.H{
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Prometheus指标
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
