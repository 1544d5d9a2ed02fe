package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/VectorBits/pocshift/src/cmd"
	"github.com/VectorBits/pocshift/src/internal/ui"
)

//go:embed config/settings.example.yaml
var embeddedFiles embed.FS

func main() {
	if err := initConfigFile(); err != nil {
		cmd.PrintFatal(fmt.Errorf("failed to init config file: %w", err))
	}

	ui.PrintBanner()
	if err := cmd.Run(); err != nil {
		cmd.PrintFatal(err)
	}
}

func initConfigFile() error {
	targetDir := "config"
	targetFile := filepath.Join(targetDir, "settings.yaml")

	// 已存在则跳过
	if _, err := os.Stat(targetFile); err == nil {
		return nil
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}

	data, err := embeddedFiles.ReadFile("config/settings.example.yaml")
	if err != nil {
		return err
	}
	if err := os.WriteFile(targetFile, data, 0644); err != nil {
		return err
	}

	fmt.Printf(ui.Green+"✅ Created default config file: %s"+ui.Reset+"\n", targetFile)
	return nil
}
