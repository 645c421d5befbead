package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ReadRatio    float64
	Requesters   int
	DoctorLimit  int
	HorizonDays  int
	PostgresDSN  string
}

// DataPool holds the doctors under load and the free slots last seen for them.
type DataPool struct {
	Doctors    []uuid.UUID
	Requesters []string

	mu    sync.RWMutex
	slots map[uuid.UUID][]string // doctor -> "YYYY-MM-DD HH:MM"
}

func (dp *DataPool) SetSlots(doctor uuid.UUID, starts []string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.slots[doctor] = starts
}

func (dp *DataPool) RandomSlot(rng *rand.Rand, doctor uuid.UUID) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	s := dp.slots[doctor]
	if len(s) == 0 {
		return "", false
	}
	return s[rng.Intn(len(s))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Booking   OperationMetrics
	ListSlots OperationMetrics
	ListMine  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "simulate")
		bootLog.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, "simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("doctors", len(dataPool.Doctors)).Int("requesters", len(dataPool.Requesters)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	violations, err := countOverlaps(verifyCtx, pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify overlaps")
	}
	if violations > 0 {
		logger.Error().Int64("pairs", violations).Msg("occupying appointments closer than the conflict buffer")
		os.Exit(1)
	}
	logger.Info().Msg("no overlapping occupying appointments found")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		Requesters:   getInt("SIM_REQUESTERS", 200),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 20),
		HorizonDays:  getInt("SIM_HORIZON_DAYS", base.HorizonDays),
		PostgresDSN:  base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Requesters <= 0 {
		return fmt.Errorf("SIM_REQUESTERS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{slots: make(map[uuid.UUID][]string)}

	rows, err := pool.Query(ctx, `
		SELECT DISTINCT d.id
		FROM doctors d
		JOIN weekly_availability w ON w.doctor_id = d.id
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors with availability; run clinicctl seed first")
	}

	faker := gofakeit.New(0)
	for i := 0; i < cfg.Requesters; i++ {
		dataPool.Requesters = append(dataPool.Requesters, faker.Username())
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	for _, d := range s.pool.Doctors {
		s.refreshSlots(ctx, d)
	}

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(workerID) + 1)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
			if rng.Float64() < s.config.BookingRatio {
				s.doBooking(ctx, rng, faker, doctor)
				continue
			}
			if rng.Intn(2) == 0 {
				s.refreshSlots(ctx, doctor)
			} else {
				s.doListMine(ctx, rng)
			}
		}
	}
}

// doBooking books a listed slot, sometimes nudged by a few minutes so that
// concurrent workers race for overlapping instants rather than identical ones.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker, doctor uuid.UUID) {
	slot, ok := s.pool.RandomSlot(rng, doctor)
	if !ok {
		return
	}
	if rng.Intn(3) == 0 {
		if t, err := time.Parse("2006-01-02 15:04", slot); err == nil {
			slot = t.Add(time.Duration(rng.Intn(25)) * time.Minute).Format("2006-01-02 15:04")
		}
	}

	body, _ := json.Marshal(map[string]string{
		"doctor":        doctor.String(),
		"start":         slot,
		"patient_name":  faker.Name(),
		"patient_phone": faker.Numerify("05########"),
		"patient_email": faker.Email(),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requester-ID", s.pool.Requesters[rng.Intn(len(s.pool.Requesters))])

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusCreated
		// 422 means the nudged instant fell outside the window.
		conflict = resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity
	}
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

type slotRow struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

func (s *Simulator) refreshSlots(ctx context.Context, doctor uuid.UUID) {
	q := url.Values{}
	q.Set("doctor", doctor.String())
	q.Set("days", strconv.Itoa(s.config.HorizonDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/slots?"+q.Encode(), nil)
	if err != nil {
		return
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		var rows []slotRow
		if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&rows) == nil {
			success = true
			var starts []string
			for _, r := range rows {
				for _, t := range r.Times {
					starts = append(starts, r.Date+" "+t)
				}
			}
			s.pool.SetSlots(doctor, starts)
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.metrics.ListSlots.Record(latency, success, false)
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/appointments", nil)
	if err != nil {
		return
	}
	req.Header.Set("X-Requester-ID", s.pool.Requesters[rng.Intn(len(s.pool.Requesters))])

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	if ctx.Err() != nil {
		return
	}
	s.metrics.ListMine.Record(latency, success, false)
}

// countOverlaps counts pairs of occupying appointments of one doctor that
// start within 1799 seconds of each other. Any result above zero is a
// double booking.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var n int64
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.id < b.id
		 AND abs(extract(epoch FROM a.start_at - b.start_at)) <= 1799
		WHERE a.status IN ('pending', 'confirmed')
		  AND b.status IN ('pending', 'confirmed')
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Doctors: %d\n", len(s.pool.Doctors))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("List slots", &s.metrics.ListSlots)
	printOperationReport("List own appointments", &s.metrics.ListMine)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
