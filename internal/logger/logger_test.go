package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	config.Level = INFO

	logger := New(config)
	compLogger := logger.WithComponent(ComponentApp)

	// Test that DEBUG messages are filtered out
	compLogger.Debug("This should not appear")
	compLogger.Info("This should appear")
	compLogger.Warn("This should appear")
	compLogger.Error("This should appear")

	output := buf.String()
	if strings.Contains(output, "This should not appear") {
		t.Error("DEBUG message should be filtered out")
	}
	if strings.Count(output, "This should appear") != 3 {
		t.Errorf("INFO/WARN/ERROR messages should appear, got %q", output)
	}
}

func TestLogger_TraceLevel(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	config.Level = TRACE

	logger := New(config)
	logger.WithComponent(ComponentApp).Trace("deep detail")

	output := buf.String()
	if !strings.Contains(output, "deep detail") || !strings.Contains(output, "trace") {
		t.Errorf("TRACE message should be written with trace marker, got %q", output)
	}
}

func TestLogger_Components(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	config.Components[ComponentPool] = false

	logger := New(config)
	appLogger := logger.WithComponent(ComponentApp)
	poolLogger := logger.WithComponent(ComponentPool)

	appLogger.Info("App message")
	poolLogger.Info("Pool message")

	output := buf.String()
	if !strings.Contains(output, "App message") {
		t.Error("App message should appear")
	}
	if strings.Contains(output, "Pool message") {
		t.Error("Pool message should be filtered out")
	}

	logger.EnableComponent(ComponentPool)
	poolLogger.Info("Pool enabled")
	if !strings.Contains(buf.String(), "Pool enabled") {
		t.Error("Pool message should appear after EnableComponent")
	}

	logger.DisableComponent(ComponentApp)
	appLogger.Info("App disabled")
	if strings.Contains(buf.String(), "App disabled") {
		t.Error("App message should be filtered after DisableComponent")
	}
}

func TestLogger_DiagnosticComponentsEnabledByDefault(t *testing.T) {
	config := DefaultConfig()
	if !config.Components[ComponentRuntime] {
		t.Error("runtime component should be enabled by default")
	}
	if !config.Components[ComponentProtocol] {
		t.Error("protocol component should be enabled by default")
	}
}

func TestLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	config.Format = FormatJSON

	logger := New(config)
	compLogger := logger.WithComponent(ComponentApp)

	compLogger.Info("Test message", map[string]interface{}{
		"key": "value",
	})

	output := buf.String()
	t.Logf("JSON output: %s", output)
	if !strings.Contains(output, `"level":"info"`) {
		t.Error("JSON format should contain level field")
	}
	if !strings.Contains(output, `"component":"app"`) {
		t.Error("JSON format should contain component field")
	}
	if !strings.Contains(output, `"message":"Test message"`) {
		t.Error("JSON format should contain message field")
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Error("JSON format should contain custom fields")
	}
}

func TestLogger_ColorFormat(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	config.Format = FormatColor

	New(config).WithComponent(ComponentApp).Warn("colored")

	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("color format should emit ANSI escapes, got %q", buf.String())
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf

	logger := New(config)
	compLogger := logger.WithComponent(ComponentApp)

	compLogger.Info("Test message", map[string]interface{}{
		"url":   "https://example.com",
		"count": 42,
		"err":   errors.New("boom"),
	})

	output := buf.String()
	if !strings.Contains(output, "https://example.com") {
		t.Error("Fields should be included in output")
	}
	if !strings.Contains(output, "42") {
		t.Error("Fields should be included in output")
	}
	if !strings.Contains(output, "boom") {
		t.Error("error fields should be included in output")
	}
}

func TestLogger_MergedFields(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	config.Format = FormatJSON

	New(config).WithComponent(ComponentApp).Info("merged",
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 2},
	)

	output := buf.String()
	if !strings.Contains(output, `"a":1`) || !strings.Contains(output, `"b":2`) {
		t.Errorf("all field maps should be merged, got %q", output)
	}
}

func TestLogger_Timestamp(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	config.Timestamp = true

	logger := New(config)
	compLogger := logger.WithComponent(ComponentApp)

	compLogger.Info("Test message")

	// Check for timestamp format (YYYY-MM-DD HH:MM:SS)
	if !regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`).MatchString(buf.String()) {
		t.Errorf("Timestamp should be included in output, got %q", buf.String())
	}
}

func TestLogger_Caller(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	config.ShowCaller = true

	logger := New(config)
	compLogger := logger.WithComponent(ComponentApp)

	compLogger.Info("Test message")

	output := buf.String()
	if !strings.Contains(output, "logger_test.go:") {
		t.Errorf("Caller information should be included in output, got %q", output)
	}
}

func TestLogger_SetOutputAndFormat(t *testing.T) {
	var first, second bytes.Buffer
	config := DefaultConfig()
	config.Output = &first

	logger := New(config)
	compLogger := logger.WithComponent(ComponentApp)
	compLogger.Info("to first")

	logger.SetOutput(&second)
	logger.SetFormat(FormatJSON)
	compLogger.Info("to second")

	if !strings.Contains(first.String(), "to first") || strings.Contains(first.String(), "to second") {
		t.Errorf("first buffer = %q", first.String())
	}
	if !strings.Contains(second.String(), `"message":"to second"`) {
		t.Errorf("second buffer = %q", second.String())
	}
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf

	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	SetGlobalLogger(New(config))
	compLogger := WithComponent(ComponentApp)

	compLogger.Info("Global logger test")

	output := buf.String()
	if !strings.Contains(output, "Global logger test") {
		t.Error("Global logger should work")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.WithComponent(ComponentRuntime).Error("dropped")
	if l.Enabled(ERROR, ComponentRuntime) {
		t.Error("Nop logger should have every component disabled")
	}

	var nilLogger *ComponentLogger
	nilLogger.Info("nil component logger must not panic")
}

func TestLogger_Concurrency(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf

	logger := New(config)
	compLogger := logger.WithComponent(ComponentApp)

	// Test concurrent logging
	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			compLogger.Info("Concurrent message", map[string]interface{}{
				"goroutine": i,
			})
			done <- true
		}(i)
	}

	// Wait for all goroutines to complete
	for i := 0; i < 10; i++ {
		<-done
	}

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 10 {
		t.Errorf("Expected 10 log lines, got %d", len(lines))
	}
}

func TestLogger_LevelNames(t *testing.T) {
	expected := map[Level]string{
		TRACE: "TRACE",
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
	}

	for level, expectedName := range expected {
		if level.String() != expectedName {
			t.Errorf("Level %d should have name %s, got %s", level, expectedName, level.String())
		}
	}
	if Level(42).String() != "UNKNOWN" {
		t.Error("unknown levels should render as UNKNOWN")
	}
}

func TestLogConfig_ToLoggerConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	cfg.Level = "debug"
	cfg.Format = "json"
	cfg.Output = "null"
	cfg.Components = map[string]bool{"solver": true}

	lc, err := cfg.ToLoggerConfig()
	if err != nil {
		t.Fatalf("ToLoggerConfig error: %v", err)
	}
	if lc.Level != DEBUG || lc.Format != FormatJSON {
		t.Errorf("got level=%v format=%v", lc.Level, lc.Format)
	}
	if !lc.Components[ComponentSolver] {
		t.Error("solver component should be enabled")
	}
}

func TestLogConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*LogConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*LogConfig) {}},
		{name: "bad level", mutate: func(c *LogConfig) { c.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *LogConfig) { c.Format = "xml" }, wantErr: true},
		{name: "bad output", mutate: func(c *LogConfig) { c.Output = "syslog" }, wantErr: true},
		{name: "empty file output", mutate: func(c *LogConfig) { c.Output = "file:" }, wantErr: true},
		{name: "file output", mutate: func(c *LogConfig) { c.Output = "file:/tmp/x.log" }},
		{name: "bad rotation size", mutate: func(c *LogConfig) {
			c.Rotation = &RotationConfig{MaxSize: "10XB"}
		}, wantErr: true},
		{name: "bad rotation backups", mutate: func(c *LogConfig) {
			c.Rotation = &RotationConfig{MaxBackups: -1}
		}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultLogConfig()
			tc.mutate(cfg)
			err := cfg.ValidateConfig()
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateConfig() err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestParseSizeAndDuration(t *testing.T) {
	if n, err := parseSize("2KB"); err != nil || n != 2048 {
		t.Errorf("parseSize(2KB) = %d, %v", n, err)
	}
	if n, err := parseSize("7"); err != nil || n != 7 {
		t.Errorf("parseSize(7) = %d, %v", n, err)
	}
	if _, err := parseSize("MB"); err == nil {
		t.Error("parseSize(MB) should fail")
	}
	if d, err := parseDuration("7d"); err != nil || d.Hours() != 168 {
		t.Errorf("parseDuration(7d) = %v, %v", d, err)
	}
	if _, err := parseDuration("3w"); err == nil {
		t.Error("parseDuration(3w) should fail")
	}
}

func TestRotatingWriter_RotatesAndCompresses(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "ytjsc.log")

	rw, err := NewRotatingWriter(filename, 16, 0, 2, true)
	if err != nil {
		t.Fatalf("NewRotatingWriter error: %v", err)
	}
	defer rw.Close()

	for i := 0; i < 4; i++ {
		if _, err := rw.Write([]byte("0123456789abcdef\n")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	var gz []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".gz") {
			gz = append(gz, filepath.Join(dir, e.Name()))
		}
	}
	if len(gz) == 0 || len(gz) > 2 {
		t.Fatalf("expected 1..2 compressed backups, got %d (%v)", len(gz), entries)
	}

	f, err := os.Open(gz[0])
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	var content bytes.Buffer
	if _, err := content.ReadFrom(zr); err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !strings.Contains(content.String(), "0123456789abcdef") {
		t.Errorf("backup content = %q", content.String())
	}
}
