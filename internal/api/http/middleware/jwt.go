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
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
)

const identityKey = "sub"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewJWTAuth 创建 JWT 认证中间件。部署方用共享密钥签发；
// /api/auth/login 换取 token，/api/auth/refresh 续期。
// API 自身不管理用户，登录校验只要求非空凭据，真正的用户体系由网关承担。
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration) (*jwt.HertzJWTMiddleware, error) {
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "runplane",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: identityKey,
		Authenticator: func(c context.Context, ctx *app.RequestContext) (interface{}, error) {
			var req loginRequest
			if err := ctx.BindAndValidate(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			if req.Username == "" || req.Password == "" {
				return nil, jwt.ErrFailedAuthentication
			}
			return req.Username, nil
		},
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if v, ok := data.(string); ok {
				return jwt.MapClaims{identityKey: v}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(c context.Context, ctx *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(c, ctx)
			return claims[identityKey]
		},
		Unauthorized: func(c context.Context, ctx *app.RequestContext, code int, message string) {
			ctx.JSON(code, map[string]string{"error": message})
		},
		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
	})
}
