package cmd

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(10, "Syncing", &buf)

	bar.Add(5)
	output := buf.String()

	if !strings.Contains(output, "Syncing") {
		t.Errorf("output should contain description, got %q", output)
	}
	if !strings.Contains(output, "5/10") {
		t.Errorf("output should contain count, got %q", output)
	}
	if strings.Count(output, "=") != 15 {
		t.Errorf("at 50%% expected 15 '=' chars, got %q", output)
	}
}

func TestProgressBarFinish(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(5, "Seeding issues", &buf)

	bar.Add(3)
	bar.Finish()
	output := buf.String()

	if !strings.Contains(output, "5/5") {
		t.Errorf("finished bar should show total/total, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("finished bar should end with newline, got %q", output)
	}
}

func TestProgressBarFailures(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(3, "Syncing", &buf)

	bar.Add(1)
	bar.Fail()
	output := buf.String()

	if !strings.Contains(output, "2/3 (1 failed)") {
		t.Errorf("expected failure tally, got %q", output)
	}
}

func TestProgressBarSilent(t *testing.T) {
	var buf bytes.Buffer
	empty := newProgressBar(0, "Empty", &buf)
	empty.Add(1)
	empty.Finish()
	if buf.Len() != 0 {
		t.Errorf("empty bar should write nothing, got %q", buf.String())
	}

	quiet := newProgressBar(3, "Quiet", nil)
	quiet.Add(1)
	quiet.Fail()
	quiet.Finish()
}

func TestProgressBarOverflow(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(5, "Overflow", &buf)

	bar.Add(10)

	if !strings.Contains(buf.String(), "5/5") {
		t.Errorf("overflowed bar should cap at total, got %q", buf.String())
	}
}

func TestProgressBarConcurrentAdds(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(50, "Concurrent", &buf)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bar.Add(1)
		}()
	}
	wg.Wait()

	if bar.done != 50 {
		t.Errorf("expected 50 finished items, got %d", bar.done)
	}
}
