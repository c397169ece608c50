package main

import (
	"fmt"
	"log"
	"os"

	_ "github.com/Gamemanuel/BathPass/docs"
	"github.com/Gamemanuel/BathPass/internal/auth"
	"github.com/Gamemanuel/BathPass/internal/config"
	"github.com/Gamemanuel/BathPass/internal/handlers"
	"github.com/Gamemanuel/BathPass/internal/live"
	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/monitoring"
	"github.com/Gamemanuel/BathPass/internal/queue"
	"github.com/Gamemanuel/BathPass/internal/storage"
	"github.com/Gamemanuel/BathPass/internal/tasks"
	"github.com/Gamemanuel/BathPass/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @Title						BathPass API
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Loading .env")
		err := godotenv.Load()
		if err != nil {
			log.Fatal("Failed to load .env")
		}
	}

	cfg := config.Load()

	storage.ConnectDatabase()

	if err := storage.DB.AutoMigrate(
		&models.Teacher{},
		&models.Pass{},
		&models.QueueEntry{},
		&models.ClassPeriod{},
		&models.Objective{},
		&models.TVSettings{},
	); err != nil {
		log.Fatal("Migration failed... ", err.Error())
	}

	storage.InitRedis(cfg)

	liveStore := live.NewStore(live.DBFetcher{DB: storage.DB})
	engine := queue.New(storage.DB)
	handlers.Init(liveStore, engine, cfg)

	ws.HubInstance.OnTeacherChange = func(teacherID uint) {
		liveStore.OnChange(teacherID)
		handlers.InvalidateDisplayCache(teacherID)
	}
	ws.HubInstance.OnTeacherGone = liveStore.Forget

	tasks.InitScheduler(cfg)

	if cfg.EnableMetrics {
		monitoring.NewMonitor(storage.DB, cfg.MetricsInterval)
	}

	go ws.HubInstance.Run()

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if cfg.EnableMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/refresh", handlers.RefreshToken)
	}

	apiGroup := r.Group("/api", auth.Middleware())
	{
		apiGroup.GET("/passes", handlers.ListPassesHandler)
		apiGroup.POST("/passes", handlers.CreatePassHandler)
		apiGroup.POST("/passes/:id/close", handlers.ClosePassHandler)
		apiGroup.POST("/passes/:id/reopen", handlers.ReopenPassHandler)
		apiGroup.PATCH("/passes/:id", handlers.EditPassHandler)
		apiGroup.DELETE("/passes/:id", handlers.DeletePassHandler)
		apiGroup.GET("/passes/export", handlers.ExportPassesHandler)

		apiGroup.GET("/queue", handlers.GetQueueHandler)
		apiGroup.POST("/queue", handlers.EnqueueHandler)
		apiGroup.POST("/queue/:id/promote", handlers.PromoteHandler)
		apiGroup.DELETE("/queue/:id", handlers.RemoveFromQueueHandler)

		apiGroup.GET("/dashboard", handlers.DashboardHandler)

		apiGroup.GET("/schedule", handlers.GetScheduleHandler)
		apiGroup.POST("/schedule", handlers.CreatePeriodHandler)
		apiGroup.DELETE("/schedule/:id", handlers.DeletePeriodHandler)
		apiGroup.GET("/objective", handlers.GetObjectiveHandler)
		apiGroup.PUT("/objective", handlers.PutObjectiveHandler)

		apiGroup.GET("/tv/settings", handlers.GetTVSettingsHandler)
		apiGroup.PUT("/tv/settings", handlers.PutTVSettingsHandler)
		apiGroup.GET("/tv/display", handlers.TVDisplayHandler)

		apiGroup.GET("/ws", ws.ServeHandler)
	}

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server...", err.Error())
	}
}
