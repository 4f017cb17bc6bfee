// ABOUTME: Loads KANBANSYNC_* and other variables from a .env file before the config is read.
// ABOUTME: Existing environment variables always win over the file.
package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// loadDotEnv sets variables from path that are not already set and returns
// how many it set. A missing file sets nothing.
func loadDotEnv(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if os.Setenv(key, value) == nil {
			n++
		}
	}
	return n
}

// parseEnvLine accepts KEY=VALUE, export KEY=VALUE, and quoted values.
// Blank lines and # comments are rejected.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}

// loadDotEnvAuto loads .env from the working directory, then from the
// directory of the executable.
func loadDotEnvAuto() {
	seen := map[string]bool{}
	for _, dir := range dotEnvDirs() {
		p := filepath.Join(dir, ".env")
		if seen[p] {
			continue
		}
		seen[p] = true
		loadDotEnv(p)
	}
}

func dotEnvDirs() []string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	return dirs
}
