// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertzjwt "github.com/hertz-contrib/jwt"

	"runplane/internal/api/http/middleware"
)

// RouterOptions 路由装配开关，来自配置
type RouterOptions struct {
	CORSEnable   bool
	AllowOrigins []string
	RateLimit    bool
	RateLimitRPS int
}

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	options    RouterOptions
	jwtAuth    *hertzjwt.HertzJWTMiddleware
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware, options RouterOptions) *Router {
	return &Router{
		handler:    handler,
		middleware: mw,
		options:    options,
	}
}

// SetJWT 启用 JWT 认证；nil 表示关闭
func (r *Router) SetJWT(auth *hertzjwt.HertzJWTMiddleware) {
	r.jwtAuth = auth
}

// Build 装配 Hertz Server 与全部路由；opts 追加给 server.New（如链路追踪）
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	serverOpts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.New(serverOpts...)

	if r.options.CORSEnable {
		h.Use(r.middleware.CORS(r.options.AllowOrigins))
	}
	if r.options.RateLimit {
		h.Use(r.middleware.RateLimit(r.options.RateLimitRPS))
	}

	// 指标与健康检查不要求认证
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	if r.jwtAuth != nil {
		api.POST("/auth/login", r.jwtAuth.LoginHandler)
		api.GET("/auth/refresh", r.jwtAuth.RefreshHandler)
		api.Use(r.jwtAuth.MiddlewareFunc())
	}

	api.POST("/jobs", r.handler.SubmitJob)
	api.GET("/jobs", r.handler.ListJobs)
	api.GET("/jobs/:id", r.handler.GetJob)
	api.GET("/jobs/:id/attempts", r.handler.ListAttempts)
	api.GET("/jobs/:id/result", r.handler.GetResult)
	api.GET("/jobs/:id/events", r.handler.StreamEvents)
	api.POST("/jobs/:id/cancel", r.handler.CancelJob)

	return h
}
