package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}

	vehicles := s.router.Group("/vehicles")
	{
		vehicles.GET("", s.vehicleHandler.List)
		vehicles.GET("/current", s.vehicleHandler.Current)
	}

	transactions := s.router.Group("/transactions")
	{
		transactions.GET("", s.vehicleHandler.Transactions)
		transactions.GET("/stats", s.vehicleHandler.TransactionStats)
	}

	commands := s.router.Group("/commands")
	{
		commands.POST("", s.commandHandler.Execute)
		commands.POST("/reset-soft", s.commandHandler.ResetSoft)
		commands.POST("/reset-hard", s.commandHandler.ResetHard)
	}
	s.router.PUT("/line", s.commandHandler.SetLine)

	s.router.GET("/ws", s.streamHandler.Events)

	stream := s.router.Group("/stream")
	{
		stream.GET("/:camera", s.streamHandler.MJPEG)
		stream.GET("/:camera/frame", s.streamHandler.Frame)
	}
}
