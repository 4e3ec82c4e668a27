package main

import (
	"context"
	"flag"
	"log"
	"os"

	track "github.com/ChristopherRabotin/trackengine"
)

const defaultScenario = "~~unset~~"

var (
	scenario        string
	input           string
	detailedLogPath string
	summaryPath     string
)

func init() {
	flag.StringVar(&scenario, "config", defaultScenario, "tracker configuration TOML/YAML file")
	flag.StringVar(&input, "input", "", "measurement stream CSV (overrides config input_path)")
	flag.StringVar(&detailedLogPath, "detailed-log", "", "detailed log CSV output path (overrides config)")
	flag.StringVar(&summaryPath, "summary", "", "track summary CSV output path (overrides config)")
}

func main() {
	flag.Parse()
	cfgPath := scenario
	if cfgPath == defaultScenario {
		cfgPath = ""
	}

	cfg, err := track.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("[error] could not load config: %s", err)
	}
	if input != "" {
		cfg.InputPath = input
	}
	if detailedLogPath != "" {
		cfg.DetailedLogPath = detailedLogPath
	}
	if summaryPath != "" {
		cfg.TrackSummaryPath = summaryPath
	}
	if cfg.InputPath == "" {
		log.Fatal("[error] no input measurement stream provided (-input or config input_path)")
	}

	measurements, rowErrs := track.LoadMeasurementsCSV(cfg.InputPath)
	for _, e := range rowErrs {
		log.Printf("[warn] %s", e)
	}

	orch := track.NewOrchestrator(cfg)
	result, err := orch.Run(context.Background(), measurements)
	if err != nil {
		log.Fatalf("[error] run failed: %s", err)
	}

	if cfg.DetailedLogPath != "" {
		f, err := os.Create(cfg.DetailedLogPath)
		if err != nil {
			log.Fatalf("[error] creating detailed log: %s", err)
		}
		if err := track.WriteDetailedLog(f, result.DetailedLog); err != nil {
			f.Close()
			log.Fatalf("[error] writing detailed log: %s", err)
		}
		f.Close()
	}

	if cfg.TrackSummaryPath != "" {
		f, err := os.Create(cfg.TrackSummaryPath)
		if err != nil {
			log.Fatalf("[error] creating track summary: %s", err)
		}
		if err := track.WriteTrackSummary(f, result.Tracks); err != nil {
			f.Close()
			log.Fatalf("[error] writing track summary: %s", err)
		}
		f.Close()
	}

	log.Printf("[info] run complete: %d live tracks, %d log rows, cancelled=%v",
		len(result.Tracks), len(result.DetailedLog), result.Cancelled)
}
