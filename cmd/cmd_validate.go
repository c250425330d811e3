package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/WrongProvider/quemVota-sub000/core"
	"github.com/WrongProvider/quemVota-sub000/serv"
	"github.com/spf13/cobra"
)

var (
	testVerbose bool
	testJSON    bool
)

// TestResult holds the overall test results
type TestResult struct {
	Success  bool            `json:"success"`
	Services []ServiceStatus `json:"services"`
	Error    string          `json:"error,omitempty"`
	Duration string          `json:"duration"`
}

// ServiceStatus holds the status of a single check
type ServiceStatus struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Note    string `json:"note,omitempty"`
}

func testCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "test",
		Short: "Validate config and test connectivity to the API",
		Long: `Validate configuration and test connectivity:
- Config file and environment overrides
- Upstream API (reads the overall stats)

Exit codes:
  0 - All checks passed
  1 - Configuration or API check failed`,
		Args: cobra.NoArgs,
		Run:  cmdTest,
	}
	c.Flags().BoolVarP(&testVerbose, "verbose", "v", false, "Show detailed output for each check")
	c.Flags().BoolVar(&testJSON, "json", false, "Output results in JSON format")
	return c
}

func cmdTest(cmd *cobra.Command, args []string) {
	startTime := time.Now()
	var services []ServiceStatus

	// Step 1: Load configuration
	setup(cpath)
	note := "defaults and environment"
	if f := conf.ConfigFile(); f != "" {
		note = f
	}
	services = append(services, ServiceStatus{
		Name:   "config",
		Type:   "yaml",
		Status: "ok",
		Note:   note,
	})

	// Step 2: Build the service
	service, err := serv.NewService(conf, log.Desugar())
	if err != nil {
		outputFailure(err, services, startTime)
		os.Exit(1)
	}
	defer service.Close() //nolint:errcheck

	services = append(services, ServiceStatus{
		Name:   "cache",
		Type:   "memory",
		Status: "ok",
		Note:   fmt.Sprintf("stale %s, gc %s", conf.Cache.StaleTime, conf.Cache.GCTime),
	})

	// Step 3: Probe the API
	st, err := probeAPI(service)
	services = append(services, st)
	if err != nil {
		outputFailure(err, services, startTime)
		os.Exit(1)
	}

	outputSuccess(services, startTime)
}

// probeAPI makes a single request to the API, without retries.
func probeAPI(s *serv.Service) (ServiceStatus, error) {
	api := s.Config().API
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), api.Timeout)
	defer cancel()

	no := core.NoRetry()
	e, err := s.Store().Fetch(ctx, serv.OverallStatsKey, core.QueryOptions{Retry: &no})
	if err == nil && e.Err != nil {
		err = e.Err
	}
	if err != nil {
		return ServiceStatus{
			Name:   "api",
			Type:   "http",
			Status: "failed",
			Note:   err.Error(),
		}, fmt.Errorf("api %s: %w", api.BaseURL, err)
	}

	return ServiceStatus{
		Name:    "api",
		Type:    "http",
		Status:  "ok",
		Latency: time.Since(start).String(),
		Note:    api.BaseURL,
	}, nil
}

func outputSuccess(services []ServiceStatus, start time.Time) {
	result := TestResult{
		Success:  true,
		Services: services,
		Duration: time.Since(start).String(),
	}
	outputResult(result)
}

func outputFailure(err error, services []ServiceStatus, start time.Time) {
	result := TestResult{
		Success:  false,
		Services: services,
		Error:    err.Error(),
		Duration: time.Since(start).String(),
	}
	outputResult(result)
}

func outputResult(result TestResult) {
	if testJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return
	}

	// Text output
	fmt.Println()
	for _, svc := range result.Services {
		status := "OK"
		if svc.Status == "failed" {
			status = "FAILED"
		}
		line := fmt.Sprintf("  %s (%s): %s", svc.Name, svc.Type, status)
		if svc.Latency != "" && testVerbose {
			line += fmt.Sprintf(" [%s]", svc.Latency)
		}
		if svc.Note != "" {
			if svc.Status == "failed" || testVerbose {
				line += fmt.Sprintf(" - %s", svc.Note)
			}
		}
		fmt.Println(line)
	}
	fmt.Println()

	if result.Success {
		fmt.Printf("All checks passed (%s)\n", result.Duration)
	} else {
		fmt.Printf("Validation failed: %s (%s)\n", result.Error, result.Duration)
	}
}
