package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/filesense/filesense/internal/errors"
)

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid search", `{"type":"search","text":"tax documents","limit":5}`, false},
		{"search without limit", `{"type":"search","text":"notes"}`, false},
		{"valid indexFolder", `{"type":"indexFolder","path":"/home/user/docs"}`, false},
		{"valid removeFolder", `{"type":"removeFolder","path":"/home/user/docs"}`, false},
		{"search with blank text", `{"type":"search","text":"  "}`, false},
		{"search with empty text and zero limit", `{"type":"search","text":"","limit":0}`, false},
		{"indexFolder without path", `{"type":"indexFolder"}`, true},
		{"unknown type", `{"type":"selfDestruct"}`, true},
		{"missing type", `{"text":"hello"}`, true},
		{"not json", `{{{`, true},
		{"json scalar", `42`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseClientMessage([]byte(tt.input))

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ferrors.ErrCodeMalformedMessage, ferrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, msg)
		})
	}
}

func TestParseClientMessage_Fields(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"search","text":"budget","limit":7}`))

	require.NoError(t, err)
	assert.Equal(t, TypeSearch, msg.Type)
	assert.Equal(t, "budget", msg.Text)
	assert.Equal(t, 7, msg.Limit)
}

func TestNewSearchResult_WireFormat(t *testing.T) {
	modified := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	result := NewSearchResult([]FileResult{{
		ID:       "abc",
		Name:     "budget.xlsx",
		Path:     "/docs/budget.xlsx",
		FileType: "xlsx",
		Summary:  "quarterly budget",
		Modified: modified,
		Score:    0.92,
	}}, 42*time.Millisecond)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "searchResult", decoded["type"])
	assert.EqualValues(t, 1, decoded["total"])
	assert.EqualValues(t, 42, decoded["queryTimeMs"])

	files := decoded["files"].([]any)
	file := files[0].(map[string]any)
	assert.Equal(t, "budget.xlsx", file["name"])
	assert.Equal(t, "xlsx", file["fileType"])
}

func TestNewSearchResult_EmptyFilesIsArray(t *testing.T) {
	data, err := json.Marshal(NewSearchResult(nil, 0))

	require.NoError(t, err)
	assert.Contains(t, string(data), `"files":[]`)
}

func TestNewIndexingProgress_WireFormat(t *testing.T) {
	msg := NewIndexingProgress(IndexStats{TotalFiles: 2, IndexedFiles: 1})

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"type":"indexingProgress"`)
	assert.Contains(t, string(data), `"totalFiles":2`)
	assert.Contains(t, string(data), `"indexedFiles":1`)
	assert.Contains(t, string(data), `"failedFiles":0`)
}

func TestServerMessages(t *testing.T) {
	removed := NewFolderRemoved("/docs")
	assert.Equal(t, TypeFolderRemoved, removed.Type)
	assert.Equal(t, "/docs", removed.Path)

	errMsg := NewError("something broke")
	assert.Equal(t, TypeError, errMsg.Type)
	assert.Equal(t, "something broke", errMsg.Message)
}
