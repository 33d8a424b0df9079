package schema

import "slices"

// Source identifies the replica that produced an action.
type Source string

const (
	// SourceBrowser is the live browser replica.
	SourceBrowser Source = "browser"
	// SourceFilesystem is the directory-tree replica.
	SourceFilesystem Source = "filesystem"
	// SourceSocket is the websocket client replica.
	SourceSocket Source = "socket"
	// SourcePersist is the JSON state file replica.
	SourcePersist Source = "persisted-file"
)

// Sources lists every replica identity.
var Sources = []Source{SourceBrowser, SourceFilesystem, SourceSocket, SourcePersist}

// Valid reports whether the source is one of the known replica identities.
func (s Source) Valid() bool {
	return slices.Contains(Sources, s)
}

// Envelope is an action tagged with the replica that caused it.
type Envelope struct {
	Source Source
	Action Action
	// Seq orders envelopes applied to the canonical workspace.
	Seq uint64
}

// IsEcho reports whether the envelope originated from self.
func (e Envelope) IsEcho(self Source) bool {
	return e.Source == self
}
