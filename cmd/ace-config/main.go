package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avrkr/asteriskace"
	"github.com/avrkr/asteriskace/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("ace-config - Configuration tool for asteriskace")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ace-config convert <input> <output>  - Convert between formats")
	fmt.Println("  ace-config validate <file>           - Validate configuration")
	fmt.Println("  ace-config stats <file>              - Show configuration statistics")
	fmt.Println("  ace-config apply <file>              - Apply configuration to engine")
	fmt.Println()
	fmt.Println("Supported formats: .ace, .dsl, .yaml, .yml, .json, .bin")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: ace-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)

	inStat, _ := os.Stat(inputFile)
	outStat, _ := os.Stat(outputFile)
	if inStat != nil && outStat != nil {
		reduction := (1 - float64(outStat.Size())/float64(inStat.Size())) * 100
		if reduction > 0 {
			fmt.Printf("Size reduced by %.1f%% (%d -> %d bytes)\n",
				reduction, inStat.Size(), outStat.Size())
		} else {
			fmt.Printf("Size increased by %.1f%% (%d -> %d bytes)\n",
				-reduction, inStat.Size(), outStat.Size())
		}
	}
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: ace-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	topics := 0
	for _, d := range cfg.Domains {
		topics += len(d.Topics)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Domains: %d\n", len(cfg.Domains))
	fmt.Printf("  Topics:  %d\n", topics)
	fmt.Printf("  Users:   %d\n", len(cfg.Users))
	fmt.Printf("  Lessons: %d\n", len(cfg.Lessons))
	fmt.Printf("  Grants:  %d\n", len(cfg.Grants))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: ace-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	topics := 0
	for _, d := range cfg.Domains {
		topics += len(d.Topics)
	}

	fmt.Println("Components:")
	fmt.Printf("  Domains: %d\n", len(cfg.Domains))
	fmt.Printf("  Topics:  %d\n", topics)
	fmt.Printf("  Users:   %d\n", len(cfg.Users))
	fmt.Printf("  Lessons: %d\n", len(cfg.Lessons))
	fmt.Printf("  Grants:  %d\n", len(cfg.Grants))
	fmt.Println()

	if len(cfg.Grants) > 0 {
		openDomain := 0
		openDate := 0
		totalDays := 0
		for _, g := range cfg.Grants {
			if g.DomainID == nil {
				openDomain++
			}
			if g.Year == nil && g.Month == nil && g.Day == nil {
				openDate++
			}
			totalDays += g.DurationDays
		}
		fmt.Println("Grant Details:")
		fmt.Printf("  Any-domain grants: %d\n", openDomain)
		fmt.Printf("  Any-date grants:   %d\n", openDate)
		fmt.Printf("  Avg duration:      %.1f days\n", float64(totalDays)/float64(len(cfg.Grants)))
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Audit buffer size:   %d\n", cfg.Engine.AuditBufferSize)
	fmt.Printf("  Sweep interval:      %dms\n", cfg.Engine.SweepIntervalMs)
	fmt.Printf("  Rule cache counters: %d\n", cfg.Engine.RuleCacheNumCounters)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: ace-config apply <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := asteriskace.NewEngine(
		stores.NewMemoryRuleStore(),
		stores.NewMemoryCatalogStore(),
		stores.NewMemoryLogStore(),
		cfg.EngineOptions()...,
	)
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Users loaded:   %d\n", len(cfg.Users))
	fmt.Printf("  Lessons loaded: %d\n", len(cfg.Lessons))
	fmt.Printf("  Grants loaded:  %d\n", len(cfg.Grants))
}

func loadConfig(filename string) (*asteriskace.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".ace", ".dsl":
		parser := asteriskace.NewDSLParser()
		return parser.Parse(data)
	case ".yaml", ".yml":
		loader := asteriskace.NewConfigLoader()
		return loader.LoadYAML(data)
	case ".json":
		loader := asteriskace.NewConfigLoader()
		return loader.LoadJSON(data)
	case ".bin":
		loader := asteriskace.NewConfigLoader()
		return loader.LoadBinary(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *asteriskace.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".ace", ".dsl":
		encoder := asteriskace.NewDSLEncoder()
		data, err = encoder.Encode(cfg)
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".bin":
		data, err = asteriskace.EncodeBinaryConfig(cfg)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
