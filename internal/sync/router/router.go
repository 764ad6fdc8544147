package router

import (
	"context"

	"chat_sync_service/internal/sync/app"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName grpc health check 使用的 service 名稱
const ServiceName = "chat_sync_service"

// RegisterRoutes 注册 sync service 的路由
func RegisterRoutes(r *fiber.App, syncWebsocket *app.SyncWebsocketHandler, profileHandler *app.ProfileHTTPHandler) {
	r.Get("/healthz", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)

	// 以下需要 token
	r.Use(middlewares.JWTMiddleware())

	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		syncWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Get("/profile/me", profileHandler.Me)
	r.Post("/profile/avatar", profileHandler.UploadAvatar)
}

// RegisterGRPC 掛上 grpc health service, 回傳的 health server 用來在關機時切成 NOT_SERVING
func RegisterGRPC(srv *grpc.Server) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return hs
}
