// Package stream decodes the batch-operation progress stream: a chunked
// body of "data: <json>" lines, one event per line.
package stream

// EventType is the "type" discriminator of a stream event.
type EventType string

const (
	TypeStart                    EventType = "start"
	TypeHeartbeat                EventType = "heartbeat"
	TypeFileQueued               EventType = "file_queued"
	TypeFileProcessing           EventType = "file_processing"
	TypeFileStart                EventType = "file_start"
	TypeFileChecking             EventType = "file_checking"
	TypeDeleteExistingEmbeddings EventType = "delete_existing_embeddings"
	TypeCleanupStart             EventType = "cleanup_start"
	TypeCleanupProgress          EventType = "cleanup_progress"
	TypeCleanupComplete          EventType = "cleanup_complete"
	TypeAutoConvertStart         EventType = "auto_convert_start"
	TypeAutoConvertProgress      EventType = "auto_convert_progress"
	TypeAutoConvertComplete      EventType = "auto_convert_complete"
	TypeVectorizeStart           EventType = "vectorize_start"
	TypeFileUploading            EventType = "file_uploading"
	TypePageProgress             EventType = "page_progress"
	TypePagesCount               EventType = "pages_count"
	TypeFileComplete             EventType = "file_complete"
	TypeFileError                EventType = "file_error"
	TypeCancelled                EventType = "cancelled"
	TypeError                    EventType = "error"
	TypeProgressUpdate           EventType = "progress_update"
	TypeSyncComplete             EventType = "sync_complete"
	TypeComplete                 EventType = "complete"
)

var knownTypes = []EventType{
	TypeStart,
	TypeHeartbeat,
	TypeFileQueued,
	TypeFileProcessing,
	TypeFileStart,
	TypeFileChecking,
	TypeDeleteExistingEmbeddings,
	TypeCleanupStart,
	TypeCleanupProgress,
	TypeCleanupComplete,
	TypeAutoConvertStart,
	TypeAutoConvertProgress,
	TypeAutoConvertComplete,
	TypeVectorizeStart,
	TypeFileUploading,
	TypePageProgress,
	TypePagesCount,
	TypeFileComplete,
	TypeFileError,
	TypeCancelled,
	TypeError,
	TypeProgressUpdate,
	TypeSyncComplete,
	TypeComplete,
}

// KnownTypes returns every event type the server is known to send.
func KnownTypes() []EventType {
	out := make([]EventType, len(knownTypes))
	copy(out, knownTypes)
	return out
}

// Known reports whether t is one of KnownTypes.
func (t EventType) Known() bool {
	for _, k := range knownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Terminal reports whether t ends a run.
func (t EventType) Terminal() bool {
	return t == TypeComplete || t == TypeCancelled || t == TypeError
}

// Event is one decoded stream record. Which fields are populated depends on
// Type; absent integers decode as zero. File indices are 1-based.
type Event struct {
	Type EventType `json:"type"`

	FileIndex    int    `json:"file_index,omitempty"`
	TotalFiles   int    `json:"total_files,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	PageIndex    int    `json:"page_index,omitempty"`
	TotalPages   int    `json:"total_pages,omitempty"`
	TotalWorkers int    `json:"total_workers,omitempty"`
	CleanupCount int    `json:"cleanup_count,omitempty"`
	DeletedCount int    `json:"deleted_count,omitempty"`
	Error        string `json:"error,omitempty"`

	CompletedCount int `json:"completed_count,omitempty"`
	SuccessCount   int `json:"success_count,omitempty"`
	FailedCount    int `json:"failed_count,omitempty"`
	TotalCount     int `json:"total_count,omitempty"`

	// Success is nil when the server omitted it.
	Success *bool    `json:"success,omitempty"`
	Message string   `json:"message,omitempty"`
	Results []Result `json:"results,omitempty"`
}

// Result is one per-object outcome carried by a "complete" event.
type Result struct {
	FileName string `json:"file_name"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}
