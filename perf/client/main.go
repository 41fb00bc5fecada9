package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amandeep2102/vision-chat/backend/processor"
	"github.com/amandeep2102/vision-chat/shared/models"
)

type Metrics struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	RejectedRequests   int64

	mu            sync.Mutex
	ResponseTimes []int64
}

func (m *Metrics) record(respTime time.Duration, status int, err error) {
	atomic.AddInt64(&m.TotalRequests, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&m.FailedRequests, 1)
		return
	case status == http.StatusServiceUnavailable:
		atomic.AddInt64(&m.RejectedRequests, 1)
		return
	case status != http.StatusOK:
		atomic.AddInt64(&m.FailedRequests, 1)
		return
	}
	atomic.AddInt64(&m.SuccessfulRequests, 1)
	m.mu.Lock()
	m.ResponseTimes = append(m.ResponseTimes, respTime.Milliseconds())
	m.mu.Unlock()
}

type TestConfig struct {
	BaseURL           string
	ConcurrentClients int
	OperationsPerSec  int
	TestDuration      time.Duration
	ImageSize         int
	Prompt            string
}

type client struct {
	baseURL string
	http    *http.Client
}

func main() {
	testType := flag.String("test", "chat", "Test type: upload, chat")
	baseURL := flag.String("url", "http://localhost:8000", "Server base URL")
	OpPerSec := flag.Int("OpPerSec", 1, "Number of operations per sec per client")
	concurrent := flag.Int("concurrent", 4, "Number of concurrent clients")
	duration := flag.Duration("duration", 1*time.Minute, "Test duration")
	imageSize := flag.Int("image-size", 512, "Image dimension (WxH)")
	prompt := flag.String("prompt", "Describe this image in one sentence.", "Chat prompt")
	flag.Parse()

	config := TestConfig{
		BaseURL:           strings.TrimRight(*baseURL, "/"),
		ConcurrentClients: *concurrent,
		OperationsPerSec:  *OpPerSec,
		TestDuration:      *duration,
		ImageSize:         *imageSize,
		Prompt:            *prompt,
	}
	if config.OperationsPerSec <= 0 || config.ConcurrentClients <= 0 {
		log.Fatal("OpPerSec and concurrent must be positive")
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("Target: %s\n", config.BaseURL)
	fmt.Printf("Concurrent clients: %d\n", config.ConcurrentClients)
	fmt.Printf("Operations/sec per client: %d\n", config.OperationsPerSec)
	fmt.Printf("Test duration: %v\n", config.TestDuration)
	fmt.Printf("Image size: %dx%d\n\n", config.ImageSize, config.ImageSize)

	c := &client{baseURL: config.BaseURL, http: &http.Client{Timeout: 10 * time.Minute}}
	encoded, err := createTestImage(config.ImageSize)
	if err != nil {
		log.Fatalf("creating test image: %v", err)
	}

	var metrics *Metrics
	start := time.Now()
	switch *testType {
	case "upload":
		metrics, err = run(config, func(ctx context.Context) (int, error) {
			status, _, err := c.upload(ctx, encoded)
			return status, err
		})
	case "chat":
		_, up, uploadErr := c.upload(context.Background(), encoded)
		if uploadErr != nil {
			log.Fatalf("uploading test image: %v", uploadErr)
		}
		fmt.Printf("Uploaded test image as %s\n\n", up.URL)
		metrics, err = run(config, func(ctx context.Context) (int, error) {
			return c.chat(ctx, up.URL, config.Prompt)
		})
	default:
		log.Fatal("Unknown test type. Use: upload or chat")
	}
	if err != nil {
		log.Fatalf("load test aborted: %v", err)
	}
	printMetrics(*testType, time.Since(start), config, metrics)
}

// run drives op from every client at the configured rate until the test
// duration elapses.
func run(config TestConfig, op func(context.Context) (int, error)) (*Metrics, error) {
	metrics := &Metrics{}
	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for clientID := 0; clientID < config.ConcurrentClients; clientID++ {
		g.Go(func() error {
			limiter := time.NewTicker(time.Second / time.Duration(config.OperationsPerSec))
			defer limiter.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-limiter.C:
				}
				startTime := time.Now()
				status, err := op(context.Background())
				metrics.record(time.Since(startTime), status, err)
				if err != nil {
					log.Printf("client %d: %v", clientID, err)
				}
			}
		})
	}
	return metrics, g.Wait()
}

func createTestImage(size int) (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r := uint8((x * 255) / size)
			g := uint8((y * 255) / size)
			b := uint8(((x + y) * 255) / (size * 2))
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return processor.EncodePNGBase64(img)
}

func (c *client) postJSON(ctx context.Context, path string, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func (c *client) upload(ctx context.Context, encoded string) (int, models.UploadImageResponse, error) {
	var out models.UploadImageResponse
	status, body, err := c.postJSON(ctx, "/api/upload-image", models.UploadImageRequest{
		Image: "data:image/png;base64," + encoded,
	})
	if err != nil {
		return status, out, err
	}
	if status != http.StatusOK {
		return status, out, fmt.Errorf("upload returned %d: %s", status, body)
	}
	return status, out, json.Unmarshal(body, &out)
}

func (c *client) chat(ctx context.Context, imageURL, prompt string) (int, error) {
	status, body, err := c.postJSON(ctx, "/api/chat", models.ChatRequest{
		Messages: []models.ChatTurn{{
			Role:    "user",
			Content: models.PartsContent(models.ImagePart(imageURL), models.TextPart(prompt)),
		}},
	})
	if err != nil {
		return status, err
	}
	if status == http.StatusOK {
		var resp models.ChatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return status, fmt.Errorf("decoding chat response: %w", err)
		}
	}
	return status, nil
}

type latencyStats struct {
	Min, Max, Avg int64
	P50, P95, P99 int64
	StdDev        float64
}

func summarize(times []int64) (latencyStats, bool) {
	n := len(times)
	if n == 0 {
		return latencyStats{}, false
	}
	sorted := append([]int64(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, rt := range sorted {
		sum += rt
	}
	avg := sum / int64(n)

	var sumSquares int64
	for _, rt := range sorted {
		diff := rt - avg
		sumSquares += diff * diff
	}

	// (n-1)*q keeps the index in range
	return latencyStats{
		Min:    sorted[0],
		Max:    sorted[n-1],
		Avg:    avg,
		P50:    sorted[int(float64(n-1)*0.50)],
		P95:    sorted[int(float64(n-1)*0.95)],
		P99:    sorted[int(float64(n-1)*0.99)],
		StdDev: math.Sqrt(float64(sumSquares) / float64(n)),
	}, true
}

func printMetrics(testName string, duration time.Duration, config TestConfig, metrics *Metrics) {
	file, err := os.OpenFile(fmt.Sprintf("%s.csv", testName), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		log.Fatalf("failed to open metrics file: %v", err)
	}
	defer file.Close()
	if info, err := file.Stat(); err == nil && info.Size() == 0 {
		_, _ = file.WriteString("Duration,NumClients,TotalRequests,SuccessfulRequests,Rejected,Failed,MinResTime,MaxResTime,AvgResTime,P50,P95,P99,StdDev\n")
	}

	totalReq := atomic.LoadInt64(&metrics.TotalRequests)
	successReq := atomic.LoadInt64(&metrics.SuccessfulRequests)
	rejectedReq := atomic.LoadInt64(&metrics.RejectedRequests)
	failedReq := atomic.LoadInt64(&metrics.FailedRequests)

	fmt.Printf("\n--- %s Results ---\n", testName)
	fmt.Printf("Duration: %v\n", duration)
	fmt.Printf("Total Requests: %d\n", totalReq)
	fmt.Printf("Successful: %d\n", successReq)
	fmt.Printf("Rejected (503): %d\n", rejectedReq)
	fmt.Printf("Failed: %d\n", failedReq)
	_, _ = fmt.Fprintf(file, "%v,%d,%d,%d,%d,%d,",
		duration.Milliseconds(), config.ConcurrentClients, totalReq, successReq, rejectedReq, failedReq)

	stats, ok := summarize(metrics.ResponseTimes)
	if !ok {
		fmt.Println("No successful requests, skipping latency stats.")
		_, _ = file.WriteString("0,0,0,0,0,0,0\n")
		fmt.Println(strings.Repeat("=", 70))
		return
	}

	fmt.Printf("Success Rate: %.2f%%\n", float64(successReq)/float64(totalReq)*100)
	fmt.Printf("Throughput: %.2f requests/sec\n", float64(totalReq)/duration.Seconds())
	fmt.Printf("Response Times (ms):\n")
	fmt.Printf("  Min: %d, Max: %d, Avg: %d\n", stats.Min, stats.Max, stats.Avg)
	fmt.Printf("  P50: %d, P95: %d, P99: %d\n", stats.P50, stats.P95, stats.P99)
	fmt.Printf("  StdDev: %.2f\n", stats.StdDev)
	_, _ = fmt.Fprintf(file, "%d,%d,%d,%d,%d,%d,%.2f\n",
		stats.Min, stats.Max, stats.Avg, stats.P50, stats.P95, stats.P99, stats.StdDev)
	fmt.Println(strings.Repeat("=", 70))
}
