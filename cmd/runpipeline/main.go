package main

// Run the estimation pipeline on a local document without the API server:
//   go run ./cmd/runpipeline -input report.pdf -workdir ./out [-region Austin]

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"estimate-backend/internal/estimates"
	"estimate-backend/internal/pipeline"
	"estimate-backend/internal/shared/config"
)

func main() {
	inputPath := flag.String("input", "", "path to the source document")
	workDir := flag.String("workdir", "", "directory for stage outputs (default: temp dir)")
	region := flag.String("region", "", "region forwarded to the estimation stage")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	runner, err := pipeline.NewRunner(cfg.PipelineDir, cfg.PipelineTimeout)
	if err != nil {
		log.Fatalf("pipeline resolution failed: %v", err)
	}

	dir := *workDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "runpipeline-")
		if err != nil {
			log.Fatalf("create workdir: %v", err)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("create workdir: %v", err)
	}

	res, err := runner.Run(context.Background(), *inputPath, dir, *region)
	if err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}

	total := estimates.TotalAmount(res.Estimate.Payload)
	summary, _ := json.MarshalIndent(res.Estimate.Payload["summary"], "", "  ")

	fmt.Printf("extraction: %s\n", res.Extraction.OutputPath)
	fmt.Printf("estimate:   %s\n", res.Estimate.OutputPath)
	if res.PDFPath != "" {
		fmt.Printf("pdf:        %s\n", res.PDFPath)
	}
	fmt.Printf("total:      $%.2f\n", total)
	fmt.Printf("summary:    %s\n", summary)
}
