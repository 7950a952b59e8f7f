package logger

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSystemLogger(t *testing.T) {
	config := SystemLoggerConfig{
		EnableConsole:    true,
		EnableOpenSearch: false,
		MinLevel:         LevelInfo,
		Service:          "test-service",
		Version:          "1.0.0",
		Environment:      "test",
	}

	logger := NewSystemLogger(nil, config)

	assert.NotNil(t, logger)
	assert.Equal(t, config.EnableConsole, logger.enableConsole)
	assert.False(t, logger.enableOpenSearch)
	assert.Equal(t, config.MinLevel, logger.minLevel)
	assert.Equal(t, config.Service, logger.service)
	assert.Equal(t, config.Version, logger.version)
	assert.Equal(t, config.Environment, logger.environment)
}

func TestSystemLogger_OpenSearchRequiresClient(t *testing.T) {
	config := SystemLoggerConfig{
		EnableConsole:    false,
		EnableOpenSearch: true,
		MinLevel:         LevelDebug,
		Service:          "test-service",
		Version:          "1.0.0",
		Environment:      "test",
	}

	// Shipping must stay off when no OpenSearch logger is wired
	logger := NewSystemLogger(nil, config)
	assert.False(t, logger.enableOpenSearch)

	logger.Info("Message without a shipping target")
}

func TestSystemLogger_LogLevels(t *testing.T) {
	config := SystemLoggerConfig{
		EnableConsole:    false, // Disable console to avoid output during tests
		EnableOpenSearch: false,
		MinLevel:         LevelDebug,
		Service:          "test-service",
		Version:          "1.0.0",
		Environment:      "test",
	}

	logger := NewSystemLogger(nil, config)

	// Test all log levels
	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Warn("Warning message")
	logger.Error("Error message", errors.New("test error"))

	// No assertions needed as we're just testing that methods don't panic
}

func TestSystemLogger_WithContext(t *testing.T) {
	config := SystemLoggerConfig{
		EnableConsole:    false,
		EnableOpenSearch: false,
		MinLevel:         LevelDebug,
		Service:          "test-service",
		Version:          "1.0.0",
		Environment:      "test",
	}

	logger := NewSystemLogger(nil, config)

	ctx := LogContext{
		Bank:          "garanti_try",
		TransactionID: "txn-123",
		RequestID:     "req-123",
		Fields:        map[string]any{"key": "value"},
	}

	logger.Debug("Debug with context", ctx)
	logger.Info("Info with context", ctx)
	logger.Warn("Warning with context", ctx)
	logger.Error("Error with context", errors.New("test error"), ctx)

	// No assertions needed as we're just testing that methods don't panic
}

func TestSystemLogger_ShouldLog(t *testing.T) {
	tests := []struct {
		name     string
		minLevel LogLevel
		level    LogLevel
		expected bool
	}{
		{
			name:     "debug_level_allows_all",
			minLevel: LevelDebug,
			level:    LevelDebug,
			expected: true,
		},
		{
			name:     "info_level_blocks_debug",
			minLevel: LevelInfo,
			level:    LevelDebug,
			expected: false,
		},
		{
			name:     "info_level_allows_info",
			minLevel: LevelInfo,
			level:    LevelInfo,
			expected: true,
		},
		{
			name:     "warn_level_allows_error",
			minLevel: LevelWarn,
			level:    LevelError,
			expected: true,
		},
		{
			name:     "error_level_blocks_warn",
			minLevel: LevelError,
			level:    LevelWarn,
			expected: false,
		},
		{
			name:     "fatal_level_allows_fatal",
			minLevel: LevelFatal,
			level:    LevelFatal,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := SystemLoggerConfig{
				EnableConsole:    false,
				EnableOpenSearch: false,
				MinLevel:         tt.minLevel,
				Service:          "test-service",
				Version:          "1.0.0",
				Environment:      "test",
			}

			logger := NewSystemLogger(nil, config)
			result := logger.shouldLog(tt.level)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSystemLogger_ExtractComponent(t *testing.T) {
	config := SystemLoggerConfig{
		EnableConsole:    false,
		EnableOpenSearch: false,
		MinLevel:         LevelDebug,
		Service:          "test-service",
		Version:          "1.0.0",
		Environment:      "test",
	}

	logger := NewSystemLogger(nil, config)

	tests := []struct {
		name     string
		filePath string
		expected string
	}{
		{
			name:     "adapter_file",
			filePath: "/path/to/vpos/gateway/garanti/garanti.go",
			expected: "gateway/garanti",
		},
		{
			name:     "handler_file",
			filePath: "/path/to/vpos/handler/payment.go",
			expected: "handler/payment.go",
		},
		{
			name:     "unknown_file",
			filePath: "/some/other/path/file.go",
			expected: "path",
		},
		{
			name:     "single_part",
			filePath: "file.go",
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := logger.extractComponent(tt.filePath)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestContextLogger(t *testing.T) {
	config := SystemLoggerConfig{
		EnableConsole:    false,
		EnableOpenSearch: false,
		MinLevel:         LevelDebug,
		Service:          "test-service",
		Version:          "1.0.0",
		Environment:      "test",
	}

	systemLogger := NewSystemLogger(nil, config)

	ctx := LogContext{
		Bank:          "garanti_try",
		TransactionID: "txn-1",
	}

	contextLogger := systemLogger.WithContext(ctx)

	assert.NotNil(t, contextLogger)
	assert.Equal(t, systemLogger, contextLogger.systemLogger)
	assert.Equal(t, ctx, contextLogger.context)

	// Test context logger methods
	contextLogger.Debug("Debug message")
	contextLogger.Info("Info message")
	contextLogger.Warn("Warning message")
	contextLogger.Error("Error message", errors.New("test error"))

	// Test chaining methods
	contextLogger.AddField("key", "value").
		SetBank("akbank_try").
		SetTransactionID("txn-2").
		SetRequestID("req-456")

	assert.Equal(t, "akbank_try", contextLogger.context.Bank)
	assert.Equal(t, "txn-2", contextLogger.context.TransactionID)
	assert.Equal(t, "req-456", contextLogger.context.RequestID)
	assert.Equal(t, "value", contextLogger.context.Fields["key"])
}

func TestSystemLogger_LogToConsole(t *testing.T) {
	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	config := SystemLoggerConfig{
		EnableConsole:    true,
		EnableOpenSearch: false,
		MinLevel:         LevelDebug,
		Service:          "test-service",
		Version:          "1.0.0",
		Environment:      "test",
	}

	logger := NewSystemLogger(nil, config)

	// Log a message with a short request ID
	logger.Info("Test console message", LogContext{RequestID: "req-1"})

	// Restore stdout
	w.Close()
	os.Stdout = old

	// Read captured output
	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	// Verify output contains expected elements
	assert.Contains(t, output, "Test console message")
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "req_id=req-1")
}
