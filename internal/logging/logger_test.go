package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// resetState clears package state between tests.
func resetState() {
	CloseAll()
	CloseAudit()
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	logsDir = ""
	workspace = ""
	configMu.Lock()
	config = loggingConfig{}
	configMu.Unlock()
}

func writeConfig(t *testing.T, ws, content string) {
	t.Helper()
	dir := filepath.Join(ws, ".neurond")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestInitialize_NoConfigIsSilent(t *testing.T) {
	resetState()
	defer resetState()

	ws := t.TempDir()
	if err := Initialize(ws); err != nil {
		t.Fatalf("missing config must not fail init: %v", err)
	}
	if IsDebugMode() {
		t.Fatal("debug mode must default off")
	}

	// Logging with debug off creates no files.
	Bus("this goes nowhere")
	if _, err := os.Stat(filepath.Join(ws, ".neurond", "logs")); !os.IsNotExist(err) {
		t.Fatal("no logs directory should be created in production mode")
	}
}

func TestInitialize_DebugModeWritesCategoryFiles(t *testing.T) {
	resetState()
	defer resetState()

	ws := t.TempDir()
	writeConfig(t, ws, "logging:\n  level: debug\n  debug_mode: true\n")
	if err := Initialize(ws); err != nil {
		t.Fatal(err)
	}
	if !IsDebugMode() {
		t.Fatal("debug mode should be enabled")
	}

	Bus("registered neuron %s", "echo")
	Governance("approved intention %s", "abc12345")
	CloseAll()

	logs := filepath.Join(ws, ".neurond", "logs")
	entries, err := os.ReadDir(logs)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, " ")
	if !strings.Contains(joined, "bus") || !strings.Contains(joined, "governance") {
		t.Fatalf("expected per-category log files, got %v", names)
	}
}

func TestCategoryDisabledIsNoop(t *testing.T) {
	resetState()
	defer resetState()

	ws := t.TempDir()
	writeConfig(t, ws, `logging:
  level: debug
  debug_mode: true
  categories:
    bus: false
    governance: true
`)
	if err := Initialize(ws); err != nil {
		t.Fatal(err)
	}

	if IsCategoryEnabled(CategoryBus) {
		t.Fatal("bus category should be disabled")
	}
	if !IsCategoryEnabled(CategoryGovernance) {
		t.Fatal("governance category should stay enabled")
	}
	// Unlisted categories default on in debug mode.
	if !IsCategoryEnabled(CategoryCoordinator) {
		t.Fatal("unlisted category should default enabled")
	}

	Bus("dropped")
	files, _ := os.ReadDir(filepath.Join(ws, ".neurond", "logs"))
	for _, f := range files {
		if strings.Contains(f.Name(), "bus") {
			t.Fatal("disabled category must not create a log file")
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	resetState()
	defer resetState()

	ws := t.TempDir()
	writeConfig(t, ws, "logging:\n  level: warn\n  debug_mode: true\n")
	if err := Initialize(ws); err != nil {
		t.Fatal(err)
	}

	l := Get(CategoryBus)
	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("visible warn")
	l.Error("visible error")
	CloseAll()

	logs := filepath.Join(ws, ".neurond", "logs")
	entries, err := os.ReadDir(logs)
	if err != nil {
		t.Fatal(err)
	}
	var busFile string
	for _, e := range entries {
		if strings.Contains(e.Name(), "bus") {
			busFile = filepath.Join(logs, e.Name())
		}
	}
	if busFile == "" {
		t.Fatalf("expected a bus log file in %v", entries)
	}
	data, err := os.ReadFile(busFile)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if strings.Contains(content, "hidden debug") || strings.Contains(content, "hidden info") {
		t.Fatalf("below-threshold entries leaked: %s", content)
	}
	if !strings.Contains(content, "visible warn") || !strings.Contains(content, "visible error") {
		t.Fatalf("expected warn and error entries, got: %s", content)
	}
}

func TestAudit_EmitsMangleFacts(t *testing.T) {
	resetState()
	defer resetState()

	ws := t.TempDir()
	writeConfig(t, ws, "logging:\n  level: debug\n  debug_mode: true\n")
	if err := Initialize(ws); err != nil {
		t.Fatal(err)
	}
	if err := InitAudit(); err != nil {
		t.Fatal(err)
	}

	Audit().IntentionEvent(AuditIntentionApprove, "intent-1", "operator", true, "")
	Audit().PolicyEvent(AuditYoloEnable, "operator", "approved 3 pending")
	Audit().BusEvent(AuditMessageSuppressed, "msg-1", "a -> b weight=-0.90")
	Audit().SafetyCheck("intent-2", false, "protected path")
	CloseAudit()

	logs := filepath.Join(ws, ".neurond", "logs")
	entries, err := os.ReadDir(logs)
	if err != nil {
		t.Fatal(err)
	}
	var auditFile string
	for _, e := range entries {
		if strings.Contains(e.Name(), "audit") {
			auditFile = filepath.Join(logs, e.Name())
		}
	}
	if auditFile == "" {
		t.Fatalf("no audit log file in %v", entries)
	}

	data, err := os.ReadFile(auditFile)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{"intention_event(", "policy_event(", "bus_event(", "safety_check("} {
		if !strings.Contains(content, want) {
			t.Fatalf("audit log missing %s fact:\n%s", want, content)
		}
	}
}
