//go:build ignore

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func main() {
	outputDir := "bin"

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	binaries := []struct {
		name   string
		path   string
		output string
		goarch string
	}{
		{"rover", "./cmd/rover", "rover", ""},
		{"rover (arm64)", "./cmd/rover", "rover-arm64", "arm64"},
		{"simulator", "./cmd/simulator", "simulator", ""},
	}

	for _, b := range binaries {
		outputPath := filepath.Join(outputDir, b.output)
		fmt.Printf("Building %s -> %s\n", b.name, outputPath)

		cmd := exec.Command("go", "build", "-o", outputPath, b.path)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = os.Environ()
		if b.goarch != "" {
			cmd.Env = append(cmd.Env, "GOOS=linux", "GOARCH="+b.goarch)
		}

		if err := cmd.Run(); err != nil {
			fmt.Printf("Error building %s: %v\n", b.name, err)
			os.Exit(1)
		}
	}

	fmt.Println("All builds completed successfully!")
}
