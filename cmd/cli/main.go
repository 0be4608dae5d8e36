package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"runplane/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("runplane cli 0.1.0")
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runServerStart()
		} else {
			fmt.Fprintf(os.Stderr, "Usage: runplane server start\n")
			os.Exit(1)
		}
	case "submit":
		runSubmit(args)
	case "jobs":
		runJobs()
	case "status":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: runplane status <job_id>\n")
			os.Exit(1)
		}
		runStatus(args[0])
	case "attempts":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: runplane attempts <job_id>\n")
			os.Exit(1)
		}
		runAttempts(args[0])
	case "result":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: runplane result <job_id>\n")
			os.Exit(1)
		}
		runResult(args[0])
	case "tail":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: runplane tail <job_id> [from]\n")
			os.Exit(1)
		}
		runTail(args)
	case "cancel":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: runplane cancel <job_id>\n")
			os.Exit(1)
		}
		runCancel(args[0])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: runplane <command> [args]")
	fmt.Println("  version            - 显示版本")
	fmt.Println("  config             - 显示配置概要")
	fmt.Println("  server start       - 启动 API 服务（go run ./cmd/api）")
	fmt.Println("  submit [json|-]    - 提交 Job，输入为 JSON 参数或 - 读 stdin，返回 job_id")
	fmt.Println("  jobs               - 列出全部保留中的 Job")
	fmt.Println("  status <job_id>    - 查询 Job 状态")
	fmt.Println("  attempts <job_id>  - 列出 Job 的全部 Attempt")
	fmt.Println("  result <job_id>    - 查询 Job 结果（未结束时提示重试）")
	fmt.Println("  tail <job_id> [from] - 流式输出 Job 事件，终态后退出")
	fmt.Println("  cancel <job_id>    - 请求取消执行中的 Job")
}

func runConfig() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("api.port=%d\n", cfg.API.Port)
	fmt.Printf("api.host=%s\n", cfg.API.Host)
	fmt.Printf("workfn.mode=%s\n", cfg.WorkFn.Mode)
}

func runServerStart() {
	c := exec.Command("go", "run", "./cmd/api")
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "server start: %v\n", err)
		os.Exit(1)
	}
}

func runSubmit(args []string) {
	input := "{}"
	if len(args) > 0 {
		if args[0] == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "读取 stdin 失败: %v\n", err)
				os.Exit(1)
			}
			input = string(data)
		} else {
			input = args[0]
		}
	}
	id, err := submitJob(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "提交失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(id)
}

func runJobs() {
	jobs, err := listJobs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}
	for _, j := range jobs {
		fmt.Printf("%v\t%v\t%v\n", j["id"], j["status"], j["created_at"])
	}
}

func runStatus(jobID string) {
	job, err := getJob(jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}
	printJSON(job)
}

func runAttempts(jobID string) {
	attempts, err := listAttempts(jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}
	printJSON(attempts)
}

func runResult(jobID string) {
	result, finished, err := getResult(jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}
	if !finished {
		fmt.Println("Job 尚未结束，请稍后重试或使用 tail 订阅事件")
		os.Exit(1)
	}
	printJSON(result)
}

func runTail(args []string) {
	var from int64
	if len(args) > 1 {
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || v < 0 {
			fmt.Fprintf(os.Stderr, "from 必须是非负整数\n")
			os.Exit(1)
		}
		from = v
	}
	if err := tailEvents(args[0], from); err != nil {
		fmt.Fprintf(os.Stderr, "订阅失败: %v\n", err)
		os.Exit(1)
	}
}

func runCancel(jobID string) {
	if err := cancelJob(jobID); err != nil {
		fmt.Fprintf(os.Stderr, "取消失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("cancel requested")
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "序列化失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
