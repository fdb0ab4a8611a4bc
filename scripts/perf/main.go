// SPDX-License-Identifier: MIT

// Command perf runs the repository's benchmarks and appends the parsed
// results to a jsonl history file so runs can be compared across commits.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skaphos/labmirror/internal/strutil"
)

type metric struct {
	NsPerOp     float64 `json:"ns_per_op"`
	BPerOp      float64 `json:"b_per_op,omitempty"`
	AllocsPerOp float64 `json:"allocs_per_op,omitempty"`
}

type runRecord struct {
	Timestamp  string            `json:"timestamp"`
	Commit     string            `json:"commit"`
	GoVersion  string            `json:"go_version"`
	Packages   []string          `json:"packages"`
	Bench      string            `json:"bench"`
	Benchtime  string            `json:"benchtime"`
	Count      int               `json:"count"`
	Benchmarks map[string]metric `json:"benchmarks"`
}

// Matches the fixed result line format of go test -bench.
var resultLine = regexp.MustCompile(`^(Benchmark\S+)\s+\d+\s+([0-9.]+)\s+ns/op(?:\s+([0-9.]+)\s+B/op\s+([0-9.]+)\s+allocs/op)?`)

func main() {
	historyPath := flag.String("history", "perf/history.jsonl", "benchmark history file, one jsonl record per run")
	rawDir := flag.String("raw-dir", "perf/runs", "where to keep the unparsed go test output")
	packageCSV := flag.String("packages", "./internal/walk,./internal/pathname", "comma-separated packages to benchmark")
	benchPattern := flag.String("bench", ".", "regexp handed to go test -bench")
	benchtime := flag.String("benchtime", "1x", "value for go test -benchtime (1x, 500ms, 2s)")
	count := flag.Int("count", 5, "value for go test -count")
	flag.Parse()

	packages := strutil.SplitCSV(*packageCSV)
	if len(packages) == 0 {
		fmt.Fprintln(os.Stderr, "perf: nothing to benchmark")
		os.Exit(2)
	}

	raw, err := runBenchmarks(packages, *benchPattern, *benchtime, *count)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	metrics, err := parseBenchOutput(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	record := runRecord{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Commit:     gitCommit(),
		GoVersion:  goToolVersion(),
		Packages:   packages,
		Bench:      *benchPattern,
		Benchtime:  *benchtime,
		Count:      *count,
		Benchmarks: metrics,
	}

	rawFile, err := writeRawLog(*rawDir, record.Commit, raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	previous, _ := lastRecord(*historyPath)
	if err := appendRecord(*historyPath, record); err != nil {
		fmt.Fprintf(os.Stderr, "perf: append to history: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("raw log: %s\n", rawFile)
	fmt.Printf("history: %s\n", *historyPath)
	printSummary(os.Stdout, record, previous)
}

func runBenchmarks(packages []string, bench, benchtime string, count int) (string, error) {
	args := append([]string{
		"test",
		"-run=^$",
		"-bench=" + bench,
		"-benchmem",
		"-benchtime=" + benchtime,
		"-count=" + strconv.Itoa(count),
	}, packages...)
	out, err := exec.Command("go", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("go test -bench: %w\n%s", err, out)
	}
	return string(out), nil
}

func parseBenchOutput(raw string) (map[string]metric, error) {
	metrics := make(map[string]metric)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		match := resultLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if len(match) == 0 {
			continue
		}
		// Without -benchmem the B/op and allocs/op groups are empty and
		// floatOrZero leaves them at zero.
		metrics[match[1]] = metric{
			NsPerOp:     floatOrZero(match[2]),
			BPerOp:      floatOrZero(match[3]),
			AllocsPerOp: floatOrZero(match[4]),
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("go test output carried no benchmark results")
	}
	return metrics, nil
}

func floatOrZero(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func gitCommit() string {
	return trimmedOutput("git", "rev-parse", "--short", "HEAD")
}

func goToolVersion() string {
	return trimmedOutput("go", "version")
}

func trimmedOutput(name string, args ...string) string {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// writeRawLog stores the unparsed go test output, named by time and
// commit so a history entry can be traced back to its full log.
func writeRawLog(dir, commit, raw string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create raw log dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.txt", time.Now().UTC().Format("20060102T150405Z"), commit)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return "", fmt.Errorf("write raw log: %w", err)
	}
	return path, nil
}

func appendRecord(path string, record runRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return json.NewEncoder(f).Encode(record)
}

// lastRecord returns the final entry of the history file, the baseline
// the new run is compared against.
func lastRecord(path string) (*runRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if last == "" {
		return nil, fmt.Errorf("history %s holds no records", path)
	}
	var record runRecord
	if err := json.Unmarshal([]byte(last), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func printSummary(out io.Writer, current runRecord, previous *runRecord) {
	names := make([]string, 0, len(current.Benchmarks))
	for name := range current.Benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "benchmark summary (ns/op):")
	for _, name := range names {
		cur := current.Benchmarks[name].NsPerOp
		if prev, ok := baseline(previous, name); ok && prev != 0 {
			fmt.Fprintf(out, "  %-40s %.2f (%+.2f%% vs previous)\n", name, cur, (cur-prev)/prev*100)
			continue
		}
		fmt.Fprintf(out, "  %-40s %.2f\n", name, cur)
	}
}

func baseline(previous *runRecord, name string) (float64, bool) {
	if previous == nil {
		return 0, false
	}
	m, ok := previous.Benchmarks[name]
	return m.NsPerOp, ok
}
