// Benchmark tool for load-testing Kestrel's scoring pipeline.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -loans 10000
//
// This tool:
//   1. Registers a pool of synthetic customers with a realistic spread of
//      ages, credit scores, incomes, and debts
//   2. Submits loan applications against them concurrently
//   3. Reports latency and the decision/risk-level distribution
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CustomerRequest is the Kestrel API request format for POST /customers.
type CustomerRequest struct {
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	DateOfBirth  string   `json:"dateOfBirth"`
	Address      string   `json:"address"`
	Email        string   `json:"email"`
	CreditScore  *int     `json:"creditScore,omitempty"`
	AnnualIncome *float64 `json:"annualIncome,omitempty"`
	ExistingDebt *float64 `json:"existingDebt,omitempty"`
}

// LoanRequest is the Kestrel API request format for POST /loans.
type LoanRequest struct {
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
	TermMonths int     `json:"termMonths"`
}

// LoanResponse is the Kestrel API response format.
type LoanResponse struct {
	Application struct {
		ID          string  `json:"id"`
		RiskScore   float64 `json:"riskScore"`
		RiskLevel   string  `json:"riskLevel"`
		Decision    string  `json:"decision"`
		Explanation string  `json:"explanation"`
	} `json:"application"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Approved     int64
	ManualReview int64
	Rejected     int64

	RiskLow    int64
	RiskMedium int64
	RiskHigh   int64

	TotalProcessed int64
	TotalErrors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	customers := flag.Int("customers", 100, "Number of synthetic customers to register")
	loans := flag.Int("loans", 1000, "Number of loan applications to submit")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for reproducible customer pools")
	verbose := flag.Bool("verbose", false, "Print each scoring result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL BENCHMARK - Loan Scoring Load              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Customers:   %d\n", *customers)
	fmt.Printf("Loans:       %d\n", *loans)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	rng := rand.New(rand.NewSource(*seed))

	// Register customer pool
	fmt.Printf("\nRegistering %d synthetic customers...\n", *customers)
	client := &http.Client{Timeout: 10 * time.Second}
	ids, err := registerCustomers(client, *baseURL, *customers, rng)
	if err != nil {
		fmt.Printf("ERROR: Failed to register customers: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Registered %d customers\n", len(ids))

	// Run benchmark
	fmt.Printf("\nSubmitting %d loan applications with %d workers...\n", *loans, *workers)
	startTime := time.Now()
	metrics := runBenchmark(ids, *baseURL, *loans, *workers, *seed, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// registerCustomers creates the synthetic applicant pool. Ages, credit
// scores, incomes, and debts are spread deliberately so the seed rules all
// get exercised.
func registerCustomers(client *http.Client, baseURL string, count int, rng *rand.Rand) ([]string, error) {
	ids := make([]string, 0, count)

	for i := 0; i < count; i++ {
		age := 18 + rng.Intn(62) // 18..79
		dob := time.Now().AddDate(-age, 0, -rng.Intn(364))

		creditScore := 400 + rng.Intn(450) // 400..849
		income := 20000 + rng.Float64()*180000
		debt := income * rng.Float64() * 0.9

		req := CustomerRequest{
			FirstName:    fmt.Sprintf("Load%04d", i),
			LastName:     "Tester",
			DateOfBirth:  dob.Format("2006-01-02"),
			Address:      fmt.Sprintf("%d Benchmark Street", i+1),
			Email:        fmt.Sprintf("load%04d@example.com", i),
			CreditScore:  &creditScore,
			AnnualIncome: &income,
			ExistingDebt: &debt,
		}

		body, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}

		resp, err := client.Post(baseURL+"/customers", "application/json", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		var created struct {
			ID string `json:"id"`
		}
		err = json.NewDecoder(resp.Body).Decode(&created)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("status %d registering customer %d", resp.StatusCode, i)
		}

		ids = append(ids, created.ID)
	}

	return ids, nil
}

func runBenchmark(customerIDs []string, baseURL string, loans, numWorkers int, seed int64, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LoanRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()
				result, err := submitLoan(client, baseURL, req)
				elapsed := time.Since(start)

				metrics.recordLatency(elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.CustomerID, err)
					}
					continue
				}

				switch result.Application.Decision {
				case "Approved":
					atomic.AddInt64(&metrics.Approved, 1)
				case "Manual Review":
					atomic.AddInt64(&metrics.ManualReview, 1)
				case "Rejected":
					atomic.AddInt64(&metrics.Rejected, 1)
				}

				switch result.Application.RiskLevel {
				case "Low":
					atomic.AddInt64(&metrics.RiskLow, 1)
				case "Medium":
					atomic.AddInt64(&metrics.RiskMedium, 1)
				case "High":
					atomic.AddInt64(&metrics.RiskHigh, 1)
				}

				if verbose {
					fmt.Printf("  $%10.2f / %2dmo | Score: %6.1f | %-6s | %-13s | %s\n",
						req.Amount,
						req.TermMonths,
						result.Application.RiskScore,
						result.Application.RiskLevel,
						result.Application.Decision,
						result.Application.Explanation,
					)
				}
			}
		}()
	}

	// Each worker gets requests from a shared pre-generated stream so the
	// run is reproducible for a fixed seed and customer pool.
	rng := rand.New(rand.NewSource(seed + 1))
	terms := []int{6, 12, 24, 36, 48, 60}
	for i := 0; i < loans; i++ {
		work <- LoanRequest{
			CustomerID: customerIDs[rng.Intn(len(customerIDs))],
			Amount:     1000 + rng.Float64()*99000,
			TermMonths: terms[rng.Intn(len(terms))],
		}
	}
	close(work)

	wg.Wait()

	return metrics
}

func submitLoan(client *http.Client, baseURL string, req LoanRequest) (*LoanResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/loans", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result LoanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 THROUGHPUT\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Throughput:       %.2f applications/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	m.mu.Lock()
	latencies := append([]time.Duration(nil), m.latencies...)
	m.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var total time.Duration
		for _, d := range latencies {
			total += d
		}

		fmt.Printf("\n⏱️  LATENCY\n")
		fmt.Printf("   Avg:  %v\n", (total / time.Duration(len(latencies))).Round(time.Microsecond))
		fmt.Printf("   p50:  %v\n", latencies[len(latencies)*50/100].Round(time.Microsecond))
		fmt.Printf("   p95:  %v\n", latencies[len(latencies)*95/100].Round(time.Microsecond))
		fmt.Printf("   p99:  %v\n", latencies[len(latencies)*99/100].Round(time.Microsecond))
		fmt.Printf("   Max:  %v\n", latencies[len(latencies)-1].Round(time.Microsecond))
	}

	scored := m.Approved + m.ManualReview + m.Rejected
	if scored > 0 {
		fmt.Printf("\n🎯 DECISIONS\n")
		fmt.Printf("   Approved:       %6d (%.2f%%)\n", m.Approved, 100*float64(m.Approved)/float64(scored))
		fmt.Printf("   Manual Review:  %6d (%.2f%%)\n", m.ManualReview, 100*float64(m.ManualReview)/float64(scored))
		fmt.Printf("   Rejected:       %6d (%.2f%%)\n", m.Rejected, 100*float64(m.Rejected)/float64(scored))

		fmt.Printf("\n📈 RISK LEVELS\n")
		fmt.Printf("   Low:     %6d\n", m.RiskLow)
		fmt.Printf("   Medium:  %6d\n", m.RiskMedium)
		fmt.Printf("   High:    %6d\n", m.RiskHigh)
	}

	fmt.Println()
}
