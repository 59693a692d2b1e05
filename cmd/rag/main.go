package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/app"
	"github.com/vkk1710/RAG-With-Citations/internal/config"
	"github.com/vkk1710/RAG-With-Citations/internal/logging"
	"github.com/vkk1710/RAG-With-Citations/internal/service"
	"github.com/vkk1710/RAG-With-Citations/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, ask, logFile string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/rag/config.yaml if not provided)")
	flag.StringVar(&ask, "ask", "", "Answer one question and exit instead of starting the chat UI")
	flag.StringVar(&logFile, "log-file", "rag.log", "Log file used while the chat UI is running")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: rag [--config=config.yaml] [--ask=question] file.pdf|file.csv|dir [...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var logger *zap.Logger
	if ask != "" {
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	} else {
		logger, err = logging.ToFile(cfg.Log.Level, logFile)
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble components", zap.Error(err))
	}
	defer a.Close()

	report, err := a.Service.Ingest(ctx, inputs)
	if err != nil {
		logger.Fatal("ingest failed", zap.Error(err))
	}

	if ask != "" {
		timeout := time.Duration(cfg.Generator.TimeoutSecs+30) * time.Second
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := a.Service.Chat(actx, service.ChatRequest{Query: ask})
		if err != nil {
			logger.Fatal("chat failed", zap.Error(err))
		}
		printAnswer(resp)
		return
	}

	m := tui.New(a.Service, fmt.Sprintf("%d documents, %d passages. %s", report.Documents, report.Indexed, report.Summary), 0)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		logger.Fatal("tui failed", zap.Error(err))
	}
}

func printAnswer(resp service.ChatResponse) {
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)
	quote := color.New(color.FgYellow)

	bold.Println(resp.Answer)
	if len(resp.Cited) == 0 {
		dim.Printf("(no grounded citations, parse tier %s)\n", resp.Tier)
		return
	}
	fmt.Println()
	for i, p := range resp.Cited {
		dim.Printf("[%d] %s @ %d\n", i+1, p.Origin.FileName, p.Origin.Location)
		quote.Println("    " + strings.Join(strings.Fields(p.Text), " "))
	}
	for _, h := range resp.Highlights {
		color.Cyan("highlight %s (%s): %v", h.FileName, h.Kind, h.Locations)
	}
	for _, d := range resp.Rendered {
		color.Green("wrote %s", d.FileName)
	}
}
