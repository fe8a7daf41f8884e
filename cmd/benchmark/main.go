package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	payments    int
	classID     int64
	invoiceID   int64
	treasurer   int64
	payer       int64
)

// Metrics
var (
	totalRequests uint64
	approved      uint64
	rejected      uint64
	fail409       uint64 // Lost the review race
	failOther     uint64
	submitFailed  uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Concurrent reviewers per payment")
	flag.IntVar(&payments, "payments", 100, "Payments to submit and review")
	flag.Int64Var(&classID, "class", 1, "Class ID")
	flag.Int64Var(&invoiceID, "invoice", 1, "Invoice the payer submits against")
	flag.Int64Var(&treasurer, "treasurer", 1, "User ID of the class owner")
	flag.Int64Var(&payer, "payer", 2, "User ID of the invoice owner")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %d payments | Reviewers: %d", payments, concurrency)

	client := &http.Client{Timeout: 5 * time.Second}
	base := fmt.Sprintf("%s/api/v1/classes/%d", targetURL, classID)

	ids := make([]int64, 0, payments)
	for i := 0; i < payments; i++ {
		id, err := submit(client, base)
		if err != nil {
			atomic.AddUint64(&submitFailed, 1)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		log.Fatalf("no payments submitted against invoice %d", invoiceID)
	}

	start := time.Now()
	for _, id := range ids {
		var wg sync.WaitGroup
		wg.Add(concurrency)
		for i := 0; i < concurrency; i++ {
			go review(&wg, client, base, id)
		}
		wg.Wait()
	}
	printResults(time.Since(start), len(ids))
}

func submit(client *http.Client, base string) (int64, error) {
	body, _ := json.Marshal(map[string]any{
		"amount":  1000,
		"method":  "bank",
		"txn_ref": fmt.Sprintf("bench-%d", time.Now().UnixNano()),
	})
	req, _ := http.NewRequest("POST", fmt.Sprintf("%s/invoices/%d/payments", base, invoiceID), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", strconv.FormatInt(payer, 10))

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("submit returned %d", resp.StatusCode)
	}

	var out struct {
		Payment struct {
			ID int64 `json:"id"`
		} `json:"payment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Payment.ID, nil
}

// review races the other reviewers; exactly one of them should win.
func review(wg *sync.WaitGroup, client *http.Client, base string, id int64) {
	defer wg.Done()

	action := "approve"
	if rand.Float32() < 0.5 {
		action = "reject"
	}
	body, _ := json.Marshal(map[string]string{"action": action})

	req, _ := http.NewRequest("POST", fmt.Sprintf("%s/payments/%d/verify", base, id), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", strconv.FormatInt(treasurer, 10))

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	defer resp.Body.Close()

	atomic.AddUint64(&totalRequests, 1)
	switch resp.StatusCode {
	case 200:
		if action == "approve" {
			atomic.AddUint64(&approved, 1)
		} else {
			atomic.AddUint64(&rejected, 1)
		}
	case 409:
		atomic.AddUint64(&fail409, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func printResults(d time.Duration, reviewed int) {
	total := atomic.LoadUint64(&totalRequests)
	a := atomic.LoadUint64(&approved)
	r := atomic.LoadUint64(&rejected)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)

	results := map[string]interface{}{
		"payments":          reviewed,
		"submit_failures":   atomic.LoadUint64(&submitFailed),
		"reviewers":         concurrency,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_rps":    float64(total) / d.Seconds(),
		"approved":          a,
		"rejected":          r,
		"conflicts":         f409,
		"errors":            fErr,
		"double_decisions":  int64(a+r) - int64(reviewed),
		"conflict_rate_pct": float64(f409) / float64(total) * 100,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	file, err := os.Create("results_review.json")
	if err != nil {
		log.Printf("could not save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
