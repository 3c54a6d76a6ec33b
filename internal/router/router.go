package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/config"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/handler"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/middleware"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/session"
)

// SetupRouter 设置路由
func SetupRouter(
	cfg *config.Config,
	sessions *session.Manager,
	authHandler *handler.AuthHandler,
	chatHandler *handler.ChatHandler,
	chatWSHandler *handler.ChatWSHandler,
	medicineHandler *handler.MedicineHandler,
) *gin.Engine {
	// 设置 Gin 模式
	gin.SetMode(cfg.App.Mode)

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowCredentials,
	))

	// 上传的图片走静态文件服务
	r.Static("/uploads", cfg.Upload.BasePath)

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 认证接口（无需登录）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		// 需要认证的接口
		authenticated := v1.Group("")
		authenticated.Use(middleware.SessionAuth(sessions))
		{
			// 登出
			authenticated.POST("/auth/logout", authHandler.Logout)

			// 聊天接口
			chat := authenticated.Group("/chat")
			{
				chat.GET("/conversations", chatHandler.ListConversations)
				chat.GET("/conversations/:id/messages", chatHandler.ListMessages)
				chat.POST("/conversations/:id/messages", chatHandler.SendMessage)
				chat.PATCH("/conversations/:id/read", chatHandler.MarkRead)
				chat.PATCH("/conversations/:id/archive", chatHandler.Archive)

				// 实时视图
				chat.GET("/ws", chatWSHandler.Serve)
			}

			// 药品目录接口
			medicines := authenticated.Group("/medicines")
			{
				medicines.GET("/all", medicineHandler.ListAll)
				medicines.GET("", medicineHandler.ListMine)
				medicines.POST("", medicineHandler.Add)
				medicines.PATCH("/:medicineId", medicineHandler.UpdateStatus)
				medicines.DELETE("/:medicineId", medicineHandler.Remove)
			}
		}
	}

	return r
}
