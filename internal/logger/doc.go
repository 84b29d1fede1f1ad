// Package logger provides structured logging functionality for the ytjsc project.
//
// Features:
//   - Multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
//   - Component-based filtering
//   - Multiple output formats (text, JSON, color) rendered by zap encoders
//   - Thread-safe operations
//   - File output with size/age rotation and gzip-compressed backups
//
// Usage:
//
//	// Get a component logger
//	log := logger.WithComponent(logger.ComponentRuntime)
//
//	// Log messages with different levels
//	log.Error("Library evaluation failed", map[string]interface{}{
//		"script": "meriyah.js",
//		"detail": exceptionText,
//	})
//
//	// Configure global logger
//	config := logger.DefaultConfig()
//	config.Level = logger.DEBUG
//	config.Format = logger.FormatJSON
//	logger.SetGlobalLogger(logger.New(config))
//
// Components:
//   - ComponentApp: CLI and facade logs
//   - ComponentRuntime: sandbox bootstrap and script exceptions
//   - ComponentSolver: batch demultiplexing
//   - ComponentProtocol: wire codec failures, including raw sandbox output
//   - ComponentAssets: bundled resource loading
//   - ComponentPool: runtime reuse and eviction
//   - ComponentRemote: remote solver calls
//   - ComponentServer: HTTP solve service
//   - ComponentCache: preprocessed player cache
//   - ComponentClient: HTTP client logs
package logger
