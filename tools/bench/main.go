package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"citizen-system/config"
	"citizen-system/pkg/jwt"

	"github.com/google/uuid"
)

// -------------------- 进程监控 --------------------

type SystemStats struct {
	Timestamp   time.Time
	MemoryUsage float64
	MemoryTotal uint64
	MemoryUsed  uint64
	Goroutines  int
}

type Monitor struct {
	stats    []SystemStats
	interval time.Duration
	stopChan chan struct{}
	mu       sync.Mutex
}

func NewMonitor(interval time.Duration) *Monitor {
	return &Monitor{
		stats:    make([]SystemStats, 0, 512),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (m *Monitor) collectStats() SystemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := SystemStats{
		Timestamp:   time.Now(),
		MemoryTotal: ms.Sys,
		MemoryUsed:  ms.Alloc,
		Goroutines:  runtime.NumGoroutine(),
	}
	if ms.Sys > 0 {
		s.MemoryUsage = float64(ms.Alloc) / float64(ms.Sys) * 100
	}
	m.mu.Lock()
	m.stats = append(m.stats, s)
	m.mu.Unlock()
	return s
}

func (m *Monitor) Start() {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s := m.collectStats()
				fmt.Printf("[%s] 内存: %.1f%% (%.1fMB/%.1fMB) | Goroutines: %d\n",
					s.Timestamp.Format("15:04:05"), s.MemoryUsage,
					float64(s.MemoryUsed)/1024/1024, float64(s.MemoryTotal)/1024/1024, s.Goroutines)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *Monitor) Stop() { close(m.stopChan) }

func (m *Monitor) SaveToFile(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _ = f.WriteString("Timestamp,MemoryUsage,MemoryTotal,MemoryUsed,Goroutines\n")
	for _, s := range m.stats {
		_, _ = fmt.Fprintf(f, "%s,%.2f,%d,%d,%d\n",
			s.Timestamp.Format("2006-01-02 15:04:05"), s.MemoryUsage, s.MemoryTotal, s.MemoryUsed, s.Goroutines)
	}
	return nil
}

// -------------------- 任务推送压测 --------------------

type JobStats struct {
	latencies []time.Duration
	codes     map[int]int
	errors    int
	mu        sync.Mutex
}

func (s *JobStats) Add(code int, err error, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors++
		return
	}
	s.codes[code]++
	s.latencies = append(s.latencies, latency)
}

// percentile 输入必须已排序
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

type deliverer struct {
	url    string
	kind   string
	signer *jwt.QueueSigner
	client *http.Client
}

func (d *deliverer) deliver(targetID string) (int, error) {
	payload := map[string]string{"userId": targetID}
	if d.kind == "moderation" {
		payload = map[string]string{"commentId": targetID}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.signer != nil {
		sig, err := d.signer.Sign(body)
		if err != nil {
			return 0, err
		}
		req.Header.Set(jwt.SignatureHeader, sig)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// runJobBench 并发推送任务。目标ID随机生成：服务端按不存在处理，
// 测的是签名校验、分发与存储查询这条路径的开销。
func runJobBench(d *deliverer, concurrency, perGoroutine int) {
	fmt.Println("\n=== 任务推送并发测试开始 ===")
	fmt.Printf("目标: %s 并发: %d 每协程请求: %d 签名: %v\n", d.url, concurrency, perGoroutine, d.signer != nil)

	stats := &JobStats{codes: make(map[int]int)}
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				t := time.Now()
				code, err := d.deliver(uuid.NewString())
				stats.Add(code, err, time.Since(t))
			}
		}()
	}
	wg.Wait()
	took := time.Since(start)

	sort.Slice(stats.latencies, func(i, j int) bool { return stats.latencies[i] < stats.latencies[j] })
	total := len(stats.latencies) + stats.errors

	fmt.Println("\n=== 任务推送测试结果 ===")
	fmt.Printf("耗时: %v\n", took)
	fmt.Printf("总请求: %d 网络错误: %d\n", total, stats.errors)
	codes := make([]int, 0, len(stats.codes))
	for c := range stats.codes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		fmt.Printf("  HTTP %d: %d\n", c, stats.codes[c])
	}
	fmt.Printf("延迟 p50: %v p90: %v p99: %v 最大: %v\n",
		percentile(stats.latencies, 0.50),
		percentile(stats.latencies, 0.90),
		percentile(stats.latencies, 0.99),
		percentile(stats.latencies, 1),
	)
	if took > 0 {
		fmt.Printf("QPS: %.2f\n", float64(len(stats.latencies))/took.Seconds())
	}
}

// -------------------- 入口 --------------------

func intArg(i, def int) int {
	if len(os.Args) > i {
		if v, err := strconv.Atoi(os.Args[i]); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// 用法: bench [activation|moderation] [并发数] [每协程请求数] [监控秒数]
func main() {
	kind := "moderation"
	if len(os.Args) > 1 && (os.Args[1] == "activation" || os.Args[1] == "moderation") {
		kind = os.Args[1]
	}
	concurrency := intArg(2, 5)
	perGoroutine := intArg(3, 10)
	monitorSeconds := intArg(4, 20)

	cfg := config.LoadConfig()
	baseURL := os.Getenv("BENCH_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Server.Port
	}

	d := &deliverer{
		url:    baseURL + "/api/v1/jobs/" + kind,
		kind:   kind,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if cfg.Queue.SigningKey != "" {
		d.signer = jwt.NewQueueSigner(cfg.Queue.SigningKey)
	}

	fmt.Println("=== 公民注册系统任务推送压测 ===")
	fmt.Printf("开始时间: %s\n", time.Now().Format("2006-01-02 15:04:05"))

	mon := NewMonitor(time.Second)
	mon.Start()
	stop := time.AfterFunc(time.Duration(monitorSeconds)*time.Second, mon.Stop)

	runJobBench(d, concurrency, perGoroutine)

	if stop.Stop() {
		mon.Stop()
	}
	if err := mon.SaveToFile("bench_monitor.csv"); err != nil {
		fmt.Println("保存监控数据失败:", err)
	} else {
		fmt.Println("监控数据已保存: bench_monitor.csv")
	}
	fmt.Println("\n=== 测试完成 ===")
}
