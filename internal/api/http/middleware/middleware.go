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

package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"
)

// Middleware 中间件管理器
type Middleware struct{}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware() *Middleware {
	return &Middleware{}
}

// CORS CORS 中间件；allowOrigins 为空表示允许任意来源
func (m *Middleware) CORS(allowOrigins []string) app.HandlerFunc {
	allowed := "*"
	if len(allowOrigins) > 0 {
		allowed = strings.Join(allowOrigins, ", ")
	}
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.Header("Access-Control-Allow-Origin", allowed)
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")
		ctx.Header("Access-Control-Max-Age", "86400")

		if string(ctx.Method()) == "OPTIONS" {
			ctx.AbortWithStatus(consts.StatusNoContent)
			return
		}
		ctx.Next(c)
	}
}

// RateLimit 速率限制中间件；令牌桶，burst 与 rps 相同
func (m *Middleware) RateLimit(rps int) app.HandlerFunc {
	if rps <= 0 {
		rps = 100
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps)
	return func(c context.Context, ctx *app.RequestContext) {
		if !limiter.Allow() {
			ctx.AbortWithStatusJSON(consts.StatusTooManyRequests, map[string]string{
				"error": "too many requests",
			})
			return
		}
		ctx.Next(c)
	}
}
