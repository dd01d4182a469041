// Fuzz runner for voltline.
//
// Runs every fuzz target for FUZZ_TIME (default 30s) and writes a summary to
// target/reports/fuzz.txt. Exits non-zero if any target finds a failing input.
//
// Usage:
//
//	go run ./scripts/fuzz
//	FUZZ_TIME=2m go run ./scripts/fuzz
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"
)

type target struct {
	name string
	pkg  string
}

var targets = []target{
	{"FuzzDecodePage", "./internal/remote/"},
	{"FuzzParseTimestamp", "./internal/transform/"},
	{"FuzzExpandEnvVars", "./internal/config/"},
}

var reExecs = regexp.MustCompile(`execs:\s+(\d+)\s+\((\d+)/sec\)`)

type outcome struct {
	target
	elapsed time.Duration
	execs   string
	ok      bool
}

func main() {
	root := projectRoot()
	reportDir := filepath.Join(root, "target", "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		log.Fatalf("creating report directory: %v", err)
	}

	fuzzTime := os.Getenv("FUZZ_TIME")
	if fuzzTime == "" {
		fuzzTime = "30s"
	}

	var (
		report   strings.Builder
		failures int
	)
	fmt.Fprintf(&report, "voltline fuzz report\ngenerated: %s\nplatform:  %s/%s\nfuzztime:  %s\n\n",
		time.Now().Format(time.RFC3339), runtime.GOOS, runtime.GOARCH, fuzzTime)

	for _, t := range targets {
		res := run(root, t, fuzzTime)
		status := "PASS"
		if !res.ok {
			status = "FAIL"
			failures++
		}
		line := fmt.Sprintf("%-4s %-22s %-24s execs=%s elapsed=%s\n",
			status, res.name, res.pkg, res.execs, res.elapsed.Round(time.Millisecond))
		fmt.Print(line)
		report.WriteString(line)
	}

	path := filepath.Join(reportDir, "fuzz.txt")
	if err := os.WriteFile(path, []byte(report.String()), 0o644); err != nil {
		log.Fatalf("writing fuzz report: %v", err)
	}
	fmt.Printf("\nreport: %s\n", path)
	if failures > 0 {
		os.Exit(1)
	}
}

func run(root string, t target, fuzzTime string) outcome {
	start := time.Now()
	cmd := exec.Command("go", "test", "-run=^$", "-fuzz=^"+t.name+"$", "-fuzztime="+fuzzTime, t.pkg)
	cmd.Dir = root

	var buf bytes.Buffer
	cmd.Stdout = io.MultiWriter(os.Stdout, &buf)
	cmd.Stderr = io.MultiWriter(os.Stderr, &buf)
	err := cmd.Run()
	out := buf.String()

	execs := "?"
	if all := reExecs.FindAllStringSubmatch(out, -1); len(all) > 0 {
		execs = all[len(all)-1][1]
	}

	// The fuzz timer can race test teardown and report a deadline error
	// without any failing input.
	ok := err == nil || (strings.Contains(out, "context deadline exceeded") &&
		!strings.Contains(out, "Failing input written to"))

	return outcome{target: t, elapsed: time.Since(start), execs: execs, ok: ok}
}

func projectRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		log.Fatal("could not determine script directory")
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			log.Fatal("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}
