package models

import (
	"fmt"
	"time"
)

// DocType is the kind of an entry in the document hierarchy.
type DocType string

const (
	DocumentType   DocType = "DocumentType"
	CollectionType DocType = "CollectionType"
)

// Mode is the transient UI state of a tree node.
type Mode string

const (
	ModeDisplay  Mode = "display"
	ModeEditing  Mode = "editing"
	ModeCreating Mode = "creating"
)

// ParseMode converts a string into a Mode. An empty string is display.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDisplay:
		return ModeDisplay, nil
	case ModeEditing:
		return ModeEditing, nil
	case ModeCreating:
		return ModeCreating, nil
	}
	return "", fmt.Errorf("unknown mode: %q", s)
}

// Valid reports whether m is one of the three node modes.
func (m Mode) Valid() bool {
	return m == ModeDisplay || m == ModeEditing || m == ModeCreating
}

// HashDoc is a document or folder entry in a user's hierarchy.
type HashDoc struct {
	ID           string     `json:"id" msgpack:"id"`
	Name         string     `json:"name" msgpack:"name"`
	Type         DocType    `json:"type" msgpack:"type"`
	Size         int64      `json:"size" msgpack:"size"`
	Extension    string     `json:"extension,omitempty" msgpack:"extension,omitempty"`
	Parent       string     `json:"parent,omitempty" msgpack:"parent,omitempty"` // lookup only
	Children     []*HashDoc `json:"children,omitempty" msgpack:"children,omitempty"`
	LastModified time.Time  `json:"lastModified" msgpack:"lastModified"`

	PreMode Mode `json:"preMode,omitempty" msgpack:"-"`
	Mode    Mode `json:"mode,omitempty" msgpack:"-"`
}

// IsFolder reports whether the entry is a collection.
func (d *HashDoc) IsFolder() bool {
	return d.Type == CollectionType
}

// CurrentMode returns the node mode, treating an unset mode as display.
func (d *HashDoc) CurrentMode() Mode {
	if d.Mode == "" {
		return ModeDisplay
	}
	return d.Mode
}

// SetMode records the previous mode and switches to m.
func (d *HashDoc) SetMode(m Mode) {
	d.PreMode = d.CurrentMode()
	d.Mode = m
}

// HashDocMetadata is the persisted state of a document, independent of any
// UI mode.
type HashDocMetadata struct {
	VisibleName      string  `json:"visibleName" yaml:"visibleName"`
	Type             DocType `json:"type" yaml:"type"`
	Parent           string  `json:"parent" yaml:"parent"`
	LastModified     string  `json:"lastModified" yaml:"lastModified"`
	LastOpened       string  `json:"lastOpened" yaml:"lastOpened"`
	Version          int     `json:"version" yaml:"version"`
	Pinned           bool    `json:"pinned" yaml:"pinned"`
	Synced           bool    `json:"synced" yaml:"synced"`
	Modified         bool    `json:"modified" yaml:"modified"`
	Deleted          bool    `json:"deleted" yaml:"deleted"`
	MetadataModified bool    `json:"metadatamodified" yaml:"metadatamodified"`
}

// Document is the record returned when a document or folder is created.
type Document struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    DocType `json:"type"`
	Version int     `json:"version"`
	Parent  string  `json:"parent,omitempty"`
}
