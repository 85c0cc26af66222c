package opik

import "time"

// Opik REST payloads

type trace struct {
	ID          string         `json:"id"`
	ProjectName string         `json:"project_name,omitempty"`
	Name        string         `json:"name"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	ErrorInfo   *errorInfo     `json:"error_info,omitempty"`
}

type span struct {
	ID          string         `json:"id"`
	TraceID     string         `json:"trace_id"`
	ProjectName string         `json:"project_name,omitempty"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Model       string         `json:"model,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Usage       map[string]int `json:"usage,omitempty"`
	ErrorInfo   *errorInfo     `json:"error_info,omitempty"`
}

type errorInfo struct {
	ExceptionType string `json:"exception_type"`
	Message       string `json:"message"`
	Traceback     string `json:"traceback"`
}

type traceBatch struct {
	Traces []trace `json:"traces"`
}

type spanBatch struct {
	Spans []span `json:"spans"`
}
