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

package api

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"runplane/internal/api/http"
	"runplane/internal/api/http/middleware"
	"runplane/internal/app"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 HTTP Router、Handler、Middleware）
type App struct {
	bootstrap    *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	handler := http.NewHandler(bootstrap.Supervisor, bootstrap.Store, bootstrap.Tailer)
	mw := middleware.NewMiddleware()

	options := http.RouterOptions{}
	if bootstrap.Config != nil {
		options.CORSEnable = bootstrap.Config.API.CORS.Enable
		options.AllowOrigins = bootstrap.Config.API.CORS.AllowOrigins
		options.RateLimit = bootstrap.Config.API.Middleware.RateLimit
		options.RateLimitRPS = bootstrap.Config.API.Middleware.RateLimitRPS
	}
	router := http.NewRouter(handler, mw, options)

	if bootstrap.Config != nil && bootstrap.Config.API.Middleware.Auth && bootstrap.Config.API.Middleware.JWTKey != "" {
		timeout := parseDuration(bootstrap.Config.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := parseDuration(bootstrap.Config.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth([]byte(bootstrap.Config.API.Middleware.JWTKey), timeout, maxRefresh)
		if err != nil {
			bootstrap.Logger.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			bootstrap.Logger.Info("JWT 认证已启用")
		}
	}

	return &App{
		bootstrap: bootstrap,
		router:    router,
	}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.bootstrap.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	output := os.Stdout
	if a.bootstrap.Config != nil && a.bootstrap.Config.Log.File != "" {
		f, err := os.OpenFile(a.bootstrap.Config.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelInfo)
	if a.bootstrap.Config != nil {
		switch a.bootstrap.Config.Log.Level {
		case "debug":
			levelVar.Set(slog.LevelDebug)
		case "warn":
			levelVar.Set(slog.LevelWarn)
		case "error":
			levelVar.Set(slog.LevelError)
		}
	}
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)

	// 可选：启用链路追踪（OpenTelemetry）
	if a.bootstrap.Config != nil && a.bootstrap.Config.Monitoring.Tracing.Enable {
		serviceName := a.bootstrap.Config.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "runplane-api"
		}
		exportEndpoint := a.bootstrap.Config.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if a.bootstrap.Config.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			p := provider.NewOpenTelemetryProvider(opts...)
			a.otelProvider = p
			tracerOpt, cfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(cfg))
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		} else {
			a.hertz = a.router.Build(addr)
		}
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭：先停 HTTP 入口，再等在途 Job 收尾
func (a *App) Shutdown(ctx context.Context) error {
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	done := make(chan struct{})
	go func() {
		a.bootstrap.Supervisor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.bootstrap.Logger.Warn("关闭超时，仍有在途 Job 未收尾")
		return ctx.Err()
	}
	return nil
}

// parseDuration 解析时长字符串，无效或空时返回 defaultVal
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
