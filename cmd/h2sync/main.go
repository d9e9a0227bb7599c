package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mavleo96/h2sync/internal/config"
	"github.com/mavleo96/h2sync/internal/database"
	"github.com/mavleo96/h2sync/internal/models"
	"github.com/mavleo96/h2sync/internal/orchestrator"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})

	configPath := flag.String("config", "config.yaml", "Path to test config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	metricsOut := flag.String("metrics-out", "", "Write run metrics in Prometheus format to this file")
	runID := flag.String("run-id", "", "Run id; a random one is generated when empty")
	listReports := flag.Bool("list-reports", false, "List the reports stored in the config's report_db and exit")
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	cfg, err := config.ParseConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	if *listReports {
		if err := printReports(cfg); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *runID == "" {
		*runID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := orchestrator.NewMetrics()
	machine := orchestrator.CreateMachine(cfg, *runID, orchestrator.WithMetrics(metrics))
	pair := machine.Start(ctx)

	if cfg.ReportDB != "" {
		if err := storeReport(cfg.ResolvePath(cfg.ReportDB), machine.Report()); err != nil {
			log.Errorf("Failed to store report: %v", err)
		}
	}
	if *metricsOut != "" {
		if err := writeMetrics(*metricsOut, metrics); err != nil {
			log.Errorf("Failed to write metrics: %v", err)
		}
	}

	printSummary(*runID, cfg.ParsedRole(), pair)
	if !pair.OK() {
		os.Exit(1)
	}
}

func storeReport(path string, report *orchestrator.Report) error {
	db := &database.Database{}
	if err := db.InitDB(path); err != nil {
		return err
	}
	defer db.Close()
	if err := db.PutReport(report); err != nil {
		return err
	}
	log.Infof("Report %s stored in %s", report.RunID, path)
	return nil
}

func writeMetrics(path string, metrics *orchestrator.Metrics) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	metrics.WritePrometheus(f)
	return nil
}

func resultColor(code models.ResultCode) *color.Color {
	switch code {
	case models.Success:
		return color.New(color.FgGreen, color.Bold)
	case models.Undefined:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func printSummary(runID string, role models.Role, pair models.ResultPair) {
	fmt.Printf("run %s (%s)\n", runID, role)
	fmt.Printf("  self: %s\n", resultColor(pair.Self).Sprint(pair.Self))
	fmt.Printf("  peer: %s\n", resultColor(pair.Peer).Sprint(pair.Peer))
	if pair.Detail != "" {
		fmt.Printf("  detail: %s\n", pair.Detail)
	}
}

func printReports(cfg *config.Config) error {
	if cfg.ReportDB == "" {
		return fmt.Errorf("report_db is not set in the config")
	}
	db := &database.Database{}
	if err := db.InitDB(cfg.ResolvePath(cfg.ReportDB)); err != nil {
		return err
	}
	defer db.Close()

	reports, err := db.ListReports()
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Printf("%s  %s  %-6s  self=%s peer=%s  sent=%d received=%d\n",
			r.StoredAt.Format("2006-01-02 15:04:05"), r.RunID, r.Role,
			resultColor(r.Result.Self).Sprint(r.Result.Self),
			resultColor(r.Result.Peer).Sprint(r.Result.Peer),
			len(r.SentFrames), len(r.ReceivedFrames))
	}
	return nil
}
