// Package protocol defines the JSON messages exchanged with clients
// over the WebSocket connection. Every message is a flat object with a
// "type" tag.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ferrors "github.com/filesense/filesense/internal/errors"
)

// Client-to-server message types.
const (
	TypeSearch       = "search"
	TypeIndexFolder  = "indexFolder"
	TypeRemoveFolder = "removeFolder"
)

// Server-to-client message types.
const (
	TypeSearchResult     = "searchResult"
	TypeIndexingProgress = "indexingProgress"
	TypeFolderRemoved    = "folderRemoved"
	TypeError            = "error"
)

// ClientMessage is the decoded client-to-server union. Exactly the
// fields for its Type are meaningful.
type ClientMessage struct {
	Type string `json:"type"`

	// Search
	Text  string `json:"text,omitempty"`
	Limit int    `json:"limit,omitempty"`

	// IndexFolder / RemoveFolder
	Path string `json:"path,omitempty"`
}

// FileResult is one search hit as sent to clients.
type FileResult struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	FileType string    `json:"fileType"`
	Summary  string    `json:"summary"`
	Modified time.Time `json:"modified"`
	Score    float32   `json:"score"`
}

// IndexStats summarizes an indexing pass.
type IndexStats struct {
	TotalFiles     int    `json:"totalFiles"`
	IndexedFiles   int    `json:"indexedFiles"`
	FailedFiles    int    `json:"failedFiles"`
	TotalChunks    int    `json:"totalChunks"`
	IndexSizeBytes uint64 `json:"indexSizeBytes"`
}

// SearchResultMessage answers a search request.
type SearchResultMessage struct {
	Type        string       `json:"type"`
	Files       []FileResult `json:"files"`
	Total       int          `json:"total"`
	QueryTimeMs int64        `json:"queryTimeMs"`
}

// IndexingProgressMessage reports indexing stats to every session.
type IndexingProgressMessage struct {
	Type  string     `json:"type"`
	Stats IndexStats `json:"stats"`
}

// FolderRemovedMessage confirms a folder removal.
type FolderRemovedMessage struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// ErrorMessage reports a failure to a session.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewSearchResult builds a searchResult message. A nil files slice
// serializes as [], not null.
func NewSearchResult(files []FileResult, queryTime time.Duration) SearchResultMessage {
	if files == nil {
		files = []FileResult{}
	}
	return SearchResultMessage{
		Type:        TypeSearchResult,
		Files:       files,
		Total:       len(files),
		QueryTimeMs: queryTime.Milliseconds(),
	}
}

// NewIndexingProgress builds an indexingProgress message.
func NewIndexingProgress(stats IndexStats) IndexingProgressMessage {
	return IndexingProgressMessage{Type: TypeIndexingProgress, Stats: stats}
}

// NewFolderRemoved builds a folderRemoved message.
func NewFolderRemoved(path string) FolderRemovedMessage {
	return FolderRemovedMessage{Type: TypeFolderRemoved, Path: path}
}

// NewError builds an error message.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// ParseClientMessage decodes and validates one client frame. All
// failures come back as MalformedMessage errors suitable for an error
// reply without closing the connection.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, ferrors.MalformedMessage("invalid message format")
	}

	switch msg.Type {
	case TypeSearch:
		// Blank text is valid; the engine answers it with an empty
		// result rather than the transport rejecting it.
	case TypeIndexFolder, TypeRemoveFolder:
		if strings.TrimSpace(msg.Path) == "" {
			return nil, ferrors.MalformedMessage(fmt.Sprintf("%s requires a path", msg.Type))
		}
	case "":
		return nil, ferrors.MalformedMessage("missing message type")
	default:
		return nil, ferrors.MalformedMessage(fmt.Sprintf("unknown message type %q", msg.Type))
	}

	return &msg, nil
}
