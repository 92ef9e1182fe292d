package config

import (
	"os"
	"strconv"
	"time"
)

// RuntimeOptions is the ambient configuration every fabric binary (the
// invoker and the three event sources) loads independently from the
// environment, mirroring how each of the original implementation's
// processes read its own copy of CONFIG plus its own listen-address
// variable. Here one process owns every listener, but the variable names
// and defaults are preserved so an operator's existing `.env` still works.
type RuntimeOptions struct {
	InvokerAddr string
	APIAddr     string
	S3Addr      string
	BusAddr     string
	MetricsAddr string

	LogLevel  string
	LogFormat string

	RetentionSeconds     int
	InvokeTimeoutSeconds int
}

// DefaultRuntimeOptions returns the options the fabric runs with when no
// environment variable overrides them.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		InvokerAddr:          ":3030",
		APIAddr:              ":3000",
		S3Addr:               ":3001",
		BusAddr:              ":3002",
		MetricsAddr:          "",
		LogLevel:             "info",
		LogFormat:            "json",
		RetentionSeconds:     300,
		InvokeTimeoutSeconds: 45,
	}
}

// LoadRuntimeOptionsFromEnv returns DefaultRuntimeOptions with every field
// overridden by its corresponding environment variable, if set.
func LoadRuntimeOptionsFromEnv() RuntimeOptions {
	opts := DefaultRuntimeOptions()

	overrideString(&opts.InvokerAddr, "INVOKER_ADDR")
	overrideString(&opts.APIAddr, "API_ADDR")
	overrideString(&opts.S3Addr, "S3_ADDR")
	overrideString(&opts.BusAddr, "BUS_ADDR")
	overrideString(&opts.MetricsAddr, "METRICS_ADDR")
	overrideString(&opts.LogLevel, "LOG_LEVEL")
	overrideString(&opts.LogFormat, "LOG_FORMAT")
	overrideInt(&opts.RetentionSeconds, "RETENTION_SECONDS")
	overrideInt(&opts.InvokeTimeoutSeconds, "INVOKE_TIMEOUT_SECONDS")

	return opts
}

// RetentionDuration is RetentionSeconds as a time.Duration, for passing
// straight to store.Store.RunRetentionSweep.
func (o RuntimeOptions) RetentionDuration() time.Duration {
	return time.Duration(o.RetentionSeconds) * time.Second
}

// InvokeTimeout is InvokeTimeoutSeconds as a time.Duration, the upper bound
// the invoker waits for a function's /response before failing an /invoke
// call with a Timeout error (spec §7).
func (o RuntimeOptions) InvokeTimeout() time.Duration {
	return time.Duration(o.InvokeTimeoutSeconds) * time.Second
}

func overrideString(dst *string, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, envVar string) {
	v, ok := os.LookupEnv(envVar)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}
