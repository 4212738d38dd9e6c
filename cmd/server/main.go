package main

import (
	"context"

	"zapbot-backend/internal/ai"
	"zapbot-backend/internal/api"
	"zapbot-backend/internal/automation"
	"zapbot-backend/internal/config"
	"zapbot-backend/internal/database"
	"zapbot-backend/internal/logger"
	"zapbot-backend/internal/stats"
	"zapbot-backend/internal/store"
	"zapbot-backend/internal/transport"
	"zapbot-backend/internal/webhook"
	"zapbot-backend/internal/worker"
	"zapbot-backend/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	log := logger.Named("main")
	defer logger.Sync()

	cfg := config.LoadConfig()
	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalw("database init failed", "error", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	aggregator := stats.NewAggregator(db)
	campaigns := store.NewCampaignStore(db, aggregator)
	flows := store.NewFlowStore(db, aggregator)
	clients := store.NewClientStore(db, aggregator, nil)
	botConfig := store.NewBotConfigStore(db)

	sender := transport.NewWhatsAppClient(cfg)
	media := transport.NewHTTPMediaResolver()
	status := transport.NewStatusTracker()

	var generator ai.Generator = ai.Disabled{}
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warnw("Gemini unavailable, AI steps will send their text as written", "error", err)
		} else {
			generator = gemini
		}
	} else {
		log.Info("GEMINI_API_KEY not set, AI steps will send their text as written")
	}

	scheduler := automation.NewScheduler(sender, media, generator, clients)
	scheduler.Events = func(event string, data map[string]interface{}) {
		hub.BroadcastEvent(event, data)
	}
	clients.SetExecutionCanceller(scheduler)
	flows.SetExecutionCanceller(scheduler)
	campaigns.SetExecutionCanceller(scheduler)
	status.Subscribe(scheduler.SetOnline)
	status.Subscribe(func(connected bool) {
		hub.BroadcastEvent("connection_status", map[string]interface{}{"connected": connected})
	})

	matcher := automation.NewMatcher(db, scheduler)
	dispatcher := worker.NewDispatcher(sender, media, clients)

	campaignWorker := worker.NewCampaignWorker(campaigns, dispatcher)
	go campaignWorker.Run(context.Background())

	webhookHandler := webhook.NewHandler(cfg, clients, matcher, hub)
	clientHandler := api.NewClientHandler(clients, hub)
	campaignHandler := api.NewCampaignHandler(campaigns, dispatcher, hub)
	flowHandler := api.NewFlowHandler(flows, hub)
	configHandler := api.NewConfigHandler(botConfig, hub)
	statsHandler := api.NewStatsHandler(aggregator)
	sessionHandler := api.NewSessionHandler(status, hub)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)

	// Panel event stream
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	{
		// Client Routes
		apiGroup.GET("/clients", clientHandler.GetClients)
		apiGroup.POST("/clients", clientHandler.CreateClient)
		apiGroup.PUT("/clients/:id", clientHandler.UpdateClient)
		apiGroup.PUT("/clients/:id/category", clientHandler.MoveToCategory)
		apiGroup.DELETE("/clients/:id", clientHandler.DeleteClient)
		apiGroup.GET("/clients/:id/messages", clientHandler.GetMessages)

		// Campaign Routes
		apiGroup.GET("/campaigns", campaignHandler.GetCampaigns)
		apiGroup.POST("/campaigns", campaignHandler.CreateCampaign)
		apiGroup.GET("/campaigns/:id", campaignHandler.GetCampaign)
		apiGroup.PUT("/campaigns/:id", campaignHandler.UpdateCampaign)
		apiGroup.DELETE("/campaigns/:id", campaignHandler.DeleteCampaign)
		apiGroup.POST("/campaigns/:id/send", campaignHandler.SendCampaign)
		apiGroup.POST("/campaigns/:id/schedule", campaignHandler.ScheduleCampaign)

		// Remarketing Flow Routes
		apiGroup.GET("/flows", flowHandler.GetFlows)
		apiGroup.POST("/flows", flowHandler.CreateFlow)
		apiGroup.GET("/flows/:id", flowHandler.GetFlow)
		apiGroup.PUT("/flows/:id", flowHandler.UpdateFlow)
		apiGroup.DELETE("/flows/:id", flowHandler.DeleteFlow)
		apiGroup.PUT("/flows/:id/activate", flowHandler.SetActive)

		// Config, statistics and session
		apiGroup.GET("/config", configHandler.GetConfig)
		apiGroup.PUT("/config", configHandler.UpdateConfig)
		apiGroup.GET("/stats", statsHandler.GetStatistics)
		apiGroup.POST("/session/connect", sessionHandler.Connect)
		apiGroup.POST("/session/confirm", sessionHandler.Confirm)
		apiGroup.POST("/session/disconnect", sessionHandler.Disconnect)
		apiGroup.GET("/session/status", sessionHandler.GetStatus)
	}

	log.Infow("server starting", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalw("server exited", "error", err)
	}
}
