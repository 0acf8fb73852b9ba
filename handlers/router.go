package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"dandi-api/helper"
	"dandi-api/logger"
	"dandi-api/middleware"
	"dandi-api/services"
)

const serviceName = "dandi-api"

type RouterConfig struct {
	Services  *services.Container
	JWTSecret []byte
	Log       *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	h := helper.NewHTTPHelper(cfg.Log)

	authHandler := NewAuthHandler(cfg.Services.Auth, h)
	dandisetHandler := NewDandisetHandler(cfg.Services.Dandisets, h)
	versionHandler := NewVersionHandler(cfg.Services.Versions, h)
	assetHandler := NewAssetHandler(cfg.Services.Assets, h)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(cfg.Log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// reads are public, writes need a token
		dandisets := v1.Group("/dandisets")
		dandisets.Use(middleware.OptionalAuth(h, cfg.JWTSecret))
		required := middleware.AuthMiddleware(h, cfg.JWTSecret)
		{
			dandisets.GET("", dandisetHandler.GetDandisets)
			dandisets.POST("", required, dandisetHandler.CreateDandiset)
			dandisets.GET("/:id", dandisetHandler.GetDandiset)

			dandisets.GET("/:id/versions", versionHandler.GetVersions)
			dandisets.GET("/:id/versions/:version", versionHandler.GetVersion)
			dandisets.PUT("/:id/versions/:version", required, versionHandler.UpdateVersion)
			dandisets.POST("/:id/versions/:version/publish", required, versionHandler.PublishVersion)
			dandisets.GET("/:id/versions/:version/validation", versionHandler.GetValidation)

			dandisets.GET("/:id/versions/:version/assets", assetHandler.GetAssets)
			dandisets.POST("/:id/versions/:version/assets", required, assetHandler.CreateAsset)
			dandisets.GET("/:id/versions/:version/assets/:asset_id", assetHandler.GetAsset)
			dandisets.PUT("/:id/versions/:version/assets/:asset_id", required, assetHandler.UpdateAsset)
		}

		v1.GET("/profile", required, authHandler.GetProfile)
	}

	return router
}
