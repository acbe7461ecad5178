package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with convenience methods
type Logger struct {
	*slog.Logger
}

// LogLevel represents logging levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	// Default logger instance
	defaultLogger *Logger
	// Current log level
	currentLevel = LevelInfo
)

// Init initializes the global logger with specified level
func Init(level string) {
	switch strings.ToLower(level) {
	case "debug":
		currentLevel = LevelDebug
	case "info", "":
		currentLevel = LevelInfo
	case "warn", "warning":
		currentLevel = LevelWarn
	case "error":
		currentLevel = LevelError
	default:
		currentLevel = LevelInfo
	}

	var slogLevel slog.Level
	switch currentLevel {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: false,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   a.Key,
					Value: slog.StringValue(a.Value.Time().Format("15:04:05")),
				}
			}
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				switch level {
				case slog.LevelDebug:
					a.Value = slog.StringValue("DEBUG")
				case slog.LevelInfo:
					a.Value = slog.StringValue("INFO ")
				case slog.LevelWarn:
					a.Value = slog.StringValue("WARN ")
				case slog.LevelError:
					a.Value = slog.StringValue("ERROR")
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	defaultLogger = &Logger{slog.New(handler)}
}

// Get returns the default logger instance
func Get() *Logger {
	if defaultLogger == nil {
		Init(os.Getenv("LOG_LEVEL"))
	}
	return defaultLogger
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	return currentLevel
}

func Debug(msg string, args ...any) {
	if currentLevel <= LevelDebug {
		Get().Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if currentLevel <= LevelInfo {
		Get().Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if currentLevel <= LevelWarn {
		Get().Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if currentLevel <= LevelError {
		Get().Error(msg, args...)
	}
}

// WithContext creates a logger with additional context
func WithContext(key string, value any) *Logger {
	return &Logger{Get().With(key, value)}
}

// Startup logs a key initialization step, a clean one-liner at INFO with
// details deferred to DEBUG.
func Startup(step, message string, args ...any) {
	if currentLevel <= LevelInfo {
		fmt.Printf("\033[36m[+]\033[0m %s\n", message)
	}
	if currentLevel <= LevelDebug {
		Debug("Startup step", append([]any{"step", step, "message", message}, args...)...)
	}
}

// PhaseStarted logs the start of one pipeline phase for a job.
func PhaseStarted(jobID string, phase string) {
	Info("Phase started", "job_id", jobID, "phase", phase)
}

// PhaseCompleted logs the successful completion of one pipeline phase.
func PhaseCompleted(jobID string, phase string, duration time.Duration) {
	Info("Phase completed", "job_id", jobID, "phase", phase, "duration", duration.String())
}

// PhaseFailed logs the terminal failure of one pipeline phase after retries
// have exhausted.
func PhaseFailed(jobID string, phase string, attempts int, err error) {
	Error("Phase failed", "job_id", jobID, "phase", phase, "attempts", attempts, "error", err.Error())
}

// JobCompleted logs a job reaching COMPLETED.
func JobCompleted(jobID string, duration time.Duration) {
	Info("Job completed", "job_id", jobID, "duration", duration.String())
}

// JobFailed logs a job reaching FAILED.
func JobFailed(jobID string, duration time.Duration, err error) {
	Error("Job failed", "job_id", jobID, "duration", duration.String(), "error", err.Error())
}

// HTTPRequest logs an inbound HTTP request at DEBUG level only; paths
// ending in /status are never logged, and above DEBUG nothing is logged.
func HTTPRequest(method, path string, status int, duration time.Duration, userAgent string) {
	if currentLevel <= LevelInfo {
		if strings.HasSuffix(path, "/status") {
			return
		}
	}
	if currentLevel <= LevelDebug {
		Debug("API request",
			"method", method,
			"path", path,
			"status", status,
			"duration", fmt.Sprintf("%.2fms", float64(duration.Nanoseconds())/1e6),
			"user_agent", userAgent)
	}
}

// WorkerInfo logs a worker-pool lifecycle event.
func WorkerInfo(workerID int, jobID, event string) {
	Info("Worker event", "worker_id", workerID, "job_id", jobID, "event", event)
}

// WorkerOperation logs a fine-grained worker operation at DEBUG level.
func WorkerOperation(workerID int, jobID string, operation string, args ...any) {
	Debug("Worker operation",
		append([]any{"worker_id", workerID, "job_id", jobID, "operation", operation}, args...)...)
}

// Performance logs a timed operation at DEBUG level.
func Performance(operation string, duration time.Duration, details ...any) {
	Debug("Performance",
		append([]any{"operation", operation, "duration", duration.String()}, details...)...)
}

// GinLogger is a gin middleware producing clean HTTP access logs.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		if raw != "" {
			path = path + "?" + raw
		}

		if currentLevel <= LevelInfo {
			if strings.Contains(path, "/status") || path == "/health" {
				return
			}
		}

		status := c.Writer.Status()
		statusColor := getStatusColor(status)

		if currentLevel <= LevelDebug {
			Debug("API request",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"duration", fmt.Sprintf("%.2fms", float64(duration.Nanoseconds())/1e6),
				"ip", c.ClientIP(),
				"user_agent", c.Request.UserAgent())
		} else {
			fmt.Printf("INFO  %s %s %s %s%d%s %s\n",
				time.Now().Format("15:04:05"),
				c.Request.Method,
				path,
				statusColor,
				status,
				"\033[0m",
				fmt.Sprintf("%.2fms", float64(duration.Nanoseconds())/1e6))
		}
	}
}

func getStatusColor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "\033[32m"
	case status >= 300 && status < 400:
		return "\033[33m"
	case status >= 400 && status < 500:
		return "\033[31m"
	case status >= 500:
		return "\033[35m"
	default:
		return "\033[37m"
	}
}

// SetGinOutput configures GIN to use a discard writer, suppressing its
// default access logging in favor of GinLogger above.
func SetGinOutput() {
	gin.DefaultWriter = io.Discard
}
