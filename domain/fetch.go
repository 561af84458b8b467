// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "fmt"

type BodySelector int

const (
	SelectFull = BodySelector(iota)
	SelectHeaders
	SelectFlags
)

func (b BodySelector) String() string {
	switch b {
	case SelectFull:
		return "full"
	case SelectHeaders:
		return "headers"
	case SelectFlags:
		return "flags"
	}
	return fmt.Sprintf("selector(%d)", int(b))
}

// Range is a range of sequence numbers, Stop == 0 means up to the newest message.
type Range struct {
	Start uint32
	Stop  uint32
}

func From(start uint32) Range {
	return Range{Start: start}
}

func (r Range) OpenEnded() bool {
	return r.Stop == 0
}

type FetchRequest struct {
	Range    Range
	Selector BodySelector
}

type FetchEventKind int

const (
	// EventMessage reports a new message of the fetch, it precedes every other event for SeqNum
	EventMessage = FetchEventKind(iota)
	EventBodyChunk
	EventBodyEnd
	EventAttributes
	EventMessageEnd
)

func (k FetchEventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventBodyChunk:
		return "body chunk"
	case EventBodyEnd:
		return "body end"
	case EventAttributes:
		return "attributes"
	case EventMessageEnd:
		return "message end"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

type Attributes struct {
	Uid   uint32
	Flags []string
}

type FetchEvent struct {
	Kind   FetchEventKind
	SeqNum uint32

	// set for EventBodyChunk
	Chunk []byte
	// set for EventAttributes
	Attributes *Attributes
}

// RawRecord is a fully received message. It is not modified after it has been handed out.
type RawRecord struct {
	Raw        []byte
	Attributes Attributes
	SeqNum     uint32
}
