package constants

import "testing"

func TestRunnerWorkDir(t *testing.T) {
	tests := []struct {
		name       string
		runnerType string
		expected   string
	}{
		{"default runner uses run root", DefaultRunnerType, "/runs/r1"},
		{"script runner gets own dir", ScriptRunnerType, "/runs/r1/script_runner"},
		{"custom runner", "legacy", "/runs/r1/legacy_runner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RunnerWorkDir("/runs/r1", tt.runnerType)
			if got != tt.expected {
				t.Errorf("RunnerWorkDir(%q) = %q, want %q", tt.runnerType, got, tt.expected)
			}
		})
	}
}

func TestRunnerLogPath(t *testing.T) {
	got := RunnerLogPath("/runs/r1", "script")
	expected := "/runs/r1/script_runner/script_runner.log"
	if got != expected {
		t.Errorf("RunnerLogPath() = %q, want %q", got, expected)
	}
}

func TestRunDir(t *testing.T) {
	got := RunDir("runtime/runs", "20240115-120000")
	expected := "runtime/runs/20240115-120000"
	if got != expected {
		t.Errorf("RunDir() = %q, want %q", got, expected)
	}
}
