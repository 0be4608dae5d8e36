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

package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("RUNPLANE_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token := os.Getenv("RUNPLANE_API_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

func submitJob(input string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	resp, err := newClient().R().
		SetBody(input).
		SetResult(&out).
		Post("/api/jobs")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return "", fmt.Errorf("POST /api/jobs: %s", resp.String())
	}
	return out.ID, nil
}

func getJob(jobID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/jobs/" + jobID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/jobs/%s: %s", jobID, resp.String())
	}
	return out, nil
}

func listJobs() ([]map[string]interface{}, error) {
	var out struct {
		Jobs []map[string]interface{} `json:"jobs"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/jobs")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/jobs: %s", resp.String())
	}
	return out.Jobs, nil
}

func listAttempts(jobID string) ([]map[string]interface{}, error) {
	var out struct {
		Attempts []map[string]interface{} `json:"attempts"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/jobs/" + jobID + "/attempts")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET attempts: %s", resp.String())
	}
	return out.Attempts, nil
}

// getResult 返回 (body, finished, error)；服务端 409 表示 Job 未结束
func getResult(jobID string) (map[string]interface{}, bool, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/jobs/" + jobID + "/result")
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode() == http.StatusConflict {
		return nil, false, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, false, fmt.Errorf("GET result: %s", resp.String())
	}
	return out, true, nil
}

func cancelJob(jobID string) error {
	resp, err := newClient().R().Post("/api/jobs/" + jobID + "/cancel")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return fmt.Errorf("POST cancel: %s", resp.String())
	}
	return nil
}

// tailEvents 流式读取 SSE 事件帧并逐行打印 data 部分；服务端在终态事件后关流
func tailEvents(jobID string, from int64) error {
	resp, err := newClient().R().
		SetDoNotParseResponse(true).
		SetQueryParam("from", fmt.Sprintf("%d", from)).
		Get("/api/jobs/" + jobID + "/events")
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("GET events: status %d", resp.StatusCode())
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			fmt.Println(strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}
