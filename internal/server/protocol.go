// Package server implements the boot sequence, request dispatch and
// shutdown of the long-running daemon (spec §4.7), and its wire
// protocol (§6.3).
package server

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/laulauland/ragrep/internal/rerr"
)

// Request is the single incoming message shape. One connection handles
// exactly one Request (spec §6.3).
type Request struct {
	ID        uint64 `json:"id"`
	Query     string `json:"query"`
	TopN      int    `json:"top_n"`
	FilesOnly bool   `json:"files_only"`
}

// Result is one ranked match in a Response.
type Result struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Text      string  `json:"text,omitempty"`
	Score     float32 `json:"score"`
}

// Stats summarizes one query's execution.
type Stats struct {
	TotalTimeMs   int64 `json:"total_time_ms"`
	NumCandidates int   `json:"num_candidates"`
	NumResults    int   `json:"num_results"`
}

// Response is a successful reply.
type Response struct {
	Type    string   `json:"type"`
	ID      uint64   `json:"id"`
	Results []Result `json:"results"`
	Stats   Stats    `json:"stats"`
}

// ErrorMessage is a failed reply. Kind is one of the closed taxonomy in
// internal/rerr, serialized as its string form.
type ErrorMessage struct {
	Type    string    `json:"type"`
	ID      uint64    `json:"id"`
	Kind    rerr.Kind `json:"kind"`
	Message string    `json:"message"`
}

const (
	typeResponse = "response"
	typeError    = "error"
)

func newResponse(id uint64, results []Result, stats Stats) Response {
	return Response{Type: typeResponse, ID: id, Results: results, Stats: stats}
}

func newErrorMessage(id uint64, kind rerr.Kind, message string) ErrorMessage {
	return ErrorMessage{Type: typeError, ID: id, Kind: kind, Message: message}
}

// readRequest decodes one newline-terminated JSON Request from r.
func readRequest(r *bufio.Reader) (Request, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// writeMessage encodes msg (a Response or ErrorMessage) as one
// newline-terminated JSON line.
func writeMessage(w *bufio.Writer, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
