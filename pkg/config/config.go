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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	RunStore   RunStoreConfig   `mapstructure:"runstore"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	WorkFn     WorkFnConfig     `mapstructure:"workfn"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	RateLimit     bool   `mapstructure:"rate_limit"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// SupervisorConfig 执行预算与分类阈值
type SupervisorConfig struct {
	MaxAutoReruns       int     `mapstructure:"max_auto_reruns"`      // <=0 使用默认 2
	MaxTotalDuration    string  `mapstructure:"max_total_duration"`   // 如 "300s"，空则默认 300s
	Backoff             string  `mapstructure:"backoff"`              // rerun 前等待，如 "1s"
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"` // <=0 使用默认 0.55
}

// MaxTotalDurationOrDefault 解析墙钟预算；空或非法时返回 def
func (c SupervisorConfig) MaxTotalDurationOrDefault(def time.Duration) time.Duration {
	if c.MaxTotalDuration == "" {
		return def
	}
	d, err := time.ParseDuration(c.MaxTotalDuration)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// BackoffOrDefault 解析 rerun backoff；空或非法时返回 def
func (c SupervisorConfig) BackoffOrDefault(def time.Duration) time.Duration {
	if c.Backoff == "" {
		return def
	}
	d, err := time.ParseDuration(c.Backoff)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// RunStoreConfig Job/事件存储保留上限
type RunStoreConfig struct {
	MaxJobs         int `mapstructure:"max_jobs"`           // <=0 使用默认 1000
	MaxEventsPerJob int `mapstructure:"max_events_per_job"` // <=0 使用默认 1000
}

// ArtifactsConfig 产物 Sink 配置
type ArtifactsConfig struct {
	Root string `mapstructure:"root"` // 文件 Sink 根目录，空则默认 ./artifacts
}

// WorkFnConfig 工作函数配置
type WorkFnConfig struct {
	Mode     string `mapstructure:"mode"`     // echo | http
	Endpoint string `mapstructure:"endpoint"` // mode=http 时的执行端点
	Timeout  string `mapstructure:"timeout"`  // 单次调用超时，如 "60s"
}

// TimeoutOrDefault 解析调用超时；空或非法时返回 def
func (c WorkFnConfig) TimeoutOrDefault(def time.Duration) time.Duration {
	if c.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// replaceEnvVars 替换配置中 ${VAR} 形式的敏感值
func replaceEnvVars(config *Config) {
	if strings.HasPrefix(config.API.Middleware.JWTKey, "${") {
		envVar := strings.TrimSuffix(strings.TrimPrefix(config.API.Middleware.JWTKey, "${"), "}")
		if val := os.Getenv(envVar); val != "" {
			config.API.Middleware.JWTKey = val
		}
	}
}

// LoadAPIConfig 加载 API 配置（仅 configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}
