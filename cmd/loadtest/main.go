package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/marketplace/internal/service/grpc"
)

type loadMode string

const (
	modePlace          loadMode = "place"
	modePlacePay       loadMode = "place-pay"
	modePlacePayCancel loadMode = "place-pay-cancel"
)

type config struct {
	grpcAddr    string
	httpURL     string
	storeID     string
	productID   string
	quantity    int
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	customerTag string
	outputPath  string
}

func parseConfig() (config, error) {
	var (
		cfg           config
		modeValue     string
		timeoutValue  string
		durationValue string
	)

	flag.StringVar(&cfg.grpcAddr, "addr", "localhost:50051", "gRPC target address")
	flag.StringVar(&cfg.httpURL, "http", "http://localhost:8080", "REST API base URL used to fill carts")
	flag.StringVar(&cfg.storeID, "store", "", "store id the product belongs to")
	flag.StringVar(&cfg.productID, "product", "", "product id added to every cart")
	flag.IntVar(&cfg.quantity, "qty", 1, "product quantity per order")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when set explicitly")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-call timeout")
	flag.StringVar(&modeValue, "mode", string(modePlace), "load mode: place | place-pay | place-pay-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for place-pay mode (0..100)")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "buyer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch {
	case strings.TrimSpace(cfg.storeID) == "":
		return errors.New("store is required")
	case strings.TrimSpace(cfg.productID) == "":
		return errors.New("product is required")
	case strings.TrimSpace(cfg.httpURL) == "":
		return errors.New("http is required")
	case cfg.quantity <= 0:
		return errors.New("qty must be > 0")
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.customerTag) == "":
		return errors.New("customer-tag is required")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modePlace, modePlacePay, modePlacePayCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		fail("invalid config: %v", err)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	callers := make([]checkoutCaller, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			fail("failed to create grpc client connection: %v", dialErr)
		}
		conns = append(conns, conn)
		callers = append(callers, grpcsvc.NewCheckoutClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result := run(cfg, newRESTCart(cfg.httpURL, cfg.timeout), callers)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			fail("failed to write report: %v", err)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run гоняет сценарии пулом воркеров, распределяя их по соединениям.
func run(cfg config, cart cartFiller, callers []checkoutCaller) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(caller checkoutCaller) {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(cart, caller, cfg, id, runID, col)
			}
		}(callers[workerID%len(callers)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario: корзина через REST, затем оформление, оплата и отмена через gRPC.
func runScenario(cart cartFiller, caller checkoutCaller, cfg config, index int, runID string, col *collector) (err error) {
	scenarioStart := time.Now()
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), err)
	}()

	buyer := fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index)

	err = timed(col, "AddCartItem", cfg.timeout, func(ctx context.Context) error {
		return cart.AddItem(ctx, buyer, cfg.storeID, cfg.productID, int32(cfg.quantity))
	})
	if err != nil {
		return err
	}

	order, err := callCheckout(caller, col, cfg.timeout, grpcsvc.MethodPlaceOrder, buyer,
		fmt.Sprintf("lt-place-%s-%d", runID, index),
		map[string]any{
			"shipping_address": "load street " + buyer,
			"contact_info":     buyer + "@load.test",
		})
	if err != nil {
		return err
	}
	orderID := order.GetFields()["id"].GetStringValue()
	if orderID == "" {
		return errors.New("place order response returned empty order id")
	}

	if cfg.mode == modePlace {
		return nil
	}

	if _, err = callCheckout(caller, col, cfg.timeout, grpcsvc.MethodInitiatePayment, buyer,
		fmt.Sprintf("lt-pay-%s-%d", runID, index),
		map[string]any{"order_id": orderID, "method": "card"},
	); err != nil {
		return err
	}

	if cfg.mode == modePlacePayCancel || (cfg.mode == modePlacePay && shouldCancelScenario(index, cfg.cancelRate)) {
		_, err = callCheckout(caller, col, cfg.timeout, grpcsvc.MethodCancelOrder, buyer,
			fmt.Sprintf("lt-cancel-%s-%d", runID, index),
			map[string]any{"order_id": orderID, "reason": "load-cancel"},
		)
	}
	return err
}

func timed(col *collector, method string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := fn(ctx)
	col.record(method, time.Since(start), err)
	return err
}

func callCheckout(
	caller checkoutCaller,
	col *collector,
	timeout time.Duration,
	method, buyer, key string,
	fields map[string]any,
) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	var resp *structpb.Struct
	err = timed(col, method, timeout, func(ctx context.Context) error {
		var callErr error
		resp, callErr = caller.Call(callContext(ctx, buyer, key), method, req)
		return callErr
	})
	return resp, err
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
