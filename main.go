package main

import (
	"fmt"
	"time"

	"streamchat/controller"
	"streamchat/llm"
	"streamchat/model"
	"streamchat/platform"
	"streamchat/service"
	"streamchat/store"
	"streamchat/tools"

	_uuid "github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CORSMiddleware ...
// CORS (Cross-Origin Resource Sharing)
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, UPDATE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Origin, Authorization, Accept, Client-Security-Token, Accept-Encoding, x-access-token")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
		} else {
			c.Next()
		}
	}
}

// RequestIDMiddleware ...
// Generate a unique ID and attach it to each request for future reference or use
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		uuid := _uuid.New()
		c.Writer.Header().Set("X-Request-Id", uuid.String())
		c.Set("requestId", uuid.String())
		c.Next()
	}
}

func LogMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)

		logger.Infof(
			" [%s] %d | %v | %s | %s | %s | %s ",
			c.GetString("requestId"),
			c.Writer.Status(),
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
			c.Request.UserAgent(),
		)
	}
}

// TokenAuthMiddleware ...
// JWT Authentication middleware attached to each request that needs to be authenitcated to
// validate the access_token in the header
func TokenAuthMiddleware(auth *controller.AuthController) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth.TokenValid(c)
		c.Next()
	}
}

func main() {
	fmt.Println("Server started...")

	//Load the .env file
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("failed to load the env file")
	}

	cfg := platform.LoadConfig()
	logger := platform.NewLogger("./log", "streamchat")

	//init database
	db, err := platform.NewDB(cfg.DB)
	if err != nil {
		logger.Fatalf("failed to connect database: %s", err)
	}
	if err := model.InstallDB(db); err != nil {
		logger.Fatalf("failed to migrate database: %s", err)
	}

	cipher := platform.AESGCMCipher{}
	users := store.NewUserStore(db)
	chats := store.NewChatStore(db)
	messages := store.NewMessageStore(db, cipher)
	ledger := store.NewGenerationStore(db)

	modelClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, logger)
	registry := tools.NewRegistry(tools.Config{
		SearchAPIKey:      cfg.SearchAPIKey,
		SearchBaseURL:     cfg.SearchBaseURL,
		VideoAPIKey:       cfg.VideoAPIKey,
		VideoBaseURL:      cfg.VideoBaseURL,
		TranscriptBaseURL: cfg.TranscriptBaseURL,
		Logger:            logger,
	})

	orchestrator := service.NewOrchestrator(modelClient, registry, ledger, messages,
		logger, cfg.CheckpointEvery, cfg.GenerationLimit)
	reconciler := service.NewStaleReconciler(ledger, messages, chats, logger, cfg.StaleAfter)
	digest := &service.DigestService{
		Messages: messages,
		Ledger:   ledger,
		Logger:   logger,
		SMTPHost: cfg.SMTPHost,
		SMTPPort: cfg.SMTPPort,
		SMTPUser: cfg.SMTPUser,
		SMTPPass: cfg.SMTPPassword,
		From:     cfg.DigestFrom,
		To:       cfg.DigestTo,
	}

	tokens := &service.TokenService{Secret: []byte(cfg.AccessSecret)}
	userService := &service.UserService{Users: users, Tokens: tokens, Logger: logger}
	auth := &controller.AuthController{Tokens: tokens, Users: userService}
	user := &controller.UserController{Service: userService, Logger: logger}
	chat := &controller.ChatController{
		Chats:        chats,
		Messages:     messages,
		Orchestrator: orchestrator,
		Catalog:      model.DefaultCatalog(),
		DefaultModel: "gpt-4o-mini",
		Logger:       logger,
	}

	r := gin.Default()
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LogMiddleware(logger))

	v1 := r.Group("/v1")
	{
		v1.POST("/user/register", user.Register)
		v1.POST("/user/login", user.Login)

		//Refresh the token
		v1.POST("/token/refresh", auth.Refresh)

		authed := v1.Group("", TokenAuthMiddleware(auth))
		authed.POST("/chats", chat.Create)
		authed.GET("/chats", chat.List)
		authed.GET("/chats/:id/messages", chat.ListMessages)
		authed.POST("/chats/:id/generate", chat.Generate)
	}

	c := cron.New()
	c.AddFunc("* * * * *", func() {
		recovered, err := reconciler.Run()
		if err != nil {
			logger.Warnf("[reconciler] pass failed: %s", err)
		}
		if recovered > 0 {
			digest.NoteRecovered(recovered)
		}
	})
	c.AddFunc("0 8 * * *", func() {
		if err := digest.Send(); err != nil {
			logger.Warnf("[digest] send failed: %s", err)
		}
	})
	c.Start()

	r.Run(":" + cfg.Port)
}
