// Package gotest converts `go test -json` output into execution records.
package gotest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

// TestType marks records produced from go test output
const TestType = "go-test"

const maxLineSize = 4 * 1024 * 1024

// event is one line of `go test -json` output.
// Per test the actions are: run, output*, (pause, cont)?, then one of pass, fail or skip.
type event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"` // seconds
	Output  string    `json:"Output"`
}

type pendingTest struct {
	output []string
}

// Parse reads `go test -json` events from r and returns one record per finished test, in
// completion order. Records are stamped with the event time, or createdAt when the stream
// carries none. Lines that are not JSON events, such as build errors, are ignored.
func Parse(r io.Reader, createdAt time.Time) ([]flaky.ExecutionRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	pending := make(map[string]*pendingTest)
	records := []flaky.ExecutionRecord{}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		// Package level events have no test name
		if ev.Test == "" {
			continue
		}

		id := ev.Package + "." + ev.Test
		switch ev.Action {
		case "run":
			pending[id] = &pendingTest{}

		case "output":
			if p, ok := pending[id]; ok {
				p.output = append(p.output, ev.Output)
			}

		case "pass", "fail", "skip":
			p := pending[id]
			delete(pending, id)
			records = append(records, eventRecord(id, ev, p, createdAt))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read go test output: %w", err)
	}

	return records, nil
}

func eventRecord(id string, ev event, p *pendingTest, createdAt time.Time) flaky.ExecutionRecord {
	record := flaky.ExecutionRecord{
		TestID:    id,
		TestName:  ev.Test,
		TestType:  TestType,
		CreatedAt: createdAt,
	}
	if !ev.Time.IsZero() {
		record.CreatedAt = ev.Time
	}

	durationMs := ev.Elapsed * 1000
	record.DurationMs = &durationMs

	switch ev.Action {
	case "pass":
		record.Status = flaky.StatusPassed
	case "fail":
		record.Status = flaky.StatusFailed
		if p != nil {
			if message := failureOutput(p.output); message != "" {
				record.ErrorMessage = &message
			}
		}
	case "skip":
		record.Status = flaky.StatusSkipped
	}
	return record
}

// failureOutput joins a test's output without the framing lines go test adds around it
func failureOutput(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "=== ") || strings.HasPrefix(trimmed, "--- FAIL") {
			continue
		}
		b.WriteString(line)
	}
	return strings.TrimSpace(b.String())
}
