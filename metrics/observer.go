// Package metrics reports pipeline progress. Components receive an
// Observer at construction; there is no process-wide event emitter.
package metrics

// Observer receives progress events from the upload and download
// pipelines and the provider handler. Implementations must be safe for
// concurrent use.
type Observer interface {
	ChunkEnqueued(id string)
	ChunkUploaded(id string, size int)
	ChunkUploadFailed(id string, validation bool)
	ChunkDownloaded(id, source string, size int)
	ChunkDownloadFailed(id string)
	SourceMismatch(id, source string)
	ProviderMessage(msgType, code string)
}

// Nop discards all events.
type Nop struct{}

var _ Observer = Nop{}

func (Nop) ChunkEnqueued(string)                {}
func (Nop) ChunkUploaded(string, int)           {}
func (Nop) ChunkUploadFailed(string, bool)      {}
func (Nop) ChunkDownloaded(string, string, int) {}
func (Nop) ChunkDownloadFailed(string)          {}
func (Nop) SourceMismatch(string, string)       {}
func (Nop) ProviderMessage(string, string)      {}

// OrNop returns o, or Nop if o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}
