package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laulauland/ragrep/internal/rerr"
)

func TestRequestRoundTrip_DecodesWrittenRequest(t *testing.T) {
	var buf bytes.Buffer
	req := Request{ID: 7, Query: "parse tokens", TopN: 5, FilesOnly: true}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	buf.Write(data)
	buf.WriteByte('\n')

	got, err := readRequest(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestWriteMessage_ResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	resp := newResponse(3, []Result{{FilePath: "a.py", StartLine: 1, EndLine: 2, Score: 0.9}}, Stats{NumResults: 1})
	require.NoError(t, writeMessage(w, resp))

	line, err := bufio.NewReader(&buf).ReadBytes('\n')
	require.NoError(t, err)
	assert.Contains(t, string(line), `"type":"response"`)
	assert.Contains(t, string(line), `"file_path":"a.py"`)
}

func TestWriteMessage_ErrorRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	errMsg := newErrorMessage(9, rerr.KindInvalidQuery, "query is empty")
	require.NoError(t, writeMessage(w, errMsg))

	line, err := bufio.NewReader(&buf).ReadBytes('\n')
	require.NoError(t, err)
	assert.Contains(t, string(line), `"kind":"InvalidQuery"`)
}
