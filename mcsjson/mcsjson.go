// Package mcsjson bridges MCStream files to the JSON interchange document.
// NBT stays opaque to the codec; this package is where JSON values become
// the byte blobs the format stores, and back.
package mcsjson

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Tnze/go-mc/nbt"

	"github.com/astei/mcstream"
)

// Format is the document's format discriminator.
const Format = "mcs"

// Document is the interchange shape:
//
//	{ "format": "mcs", "version": "<major>.<minor>",
//	  "blocks": [ {"id": "...", "pos": [x,y,z], "nbt": <any>?}, ... ] }
type Document struct {
	Format  string       `json:"format"`
	Version string       `json:"version"`
	Blocks  []BlockEntry `json:"blocks"`
}

type BlockEntry struct {
	ID  string          `json:"id"`
	Pos []int32         `json:"pos"`
	NBT json.RawMessage `json:"nbt,omitempty"`
}

// Pack parses an interchange document from r and feeds every block into the
// encoder. NBT values are reduced to stable bytes before they reach the
// codec, so the same document always produces the same file.
func Pack(r io.Reader, encoder *mcstream.Encoder) error {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("mcsjson: parsing document: %w", err)
	}
	if doc.Format != "" && doc.Format != Format {
		return fmt.Errorf("mcsjson: unexpected format %q", doc.Format)
	}

	for i, block := range doc.Blocks {
		if block.ID == "" {
			return fmt.Errorf("mcsjson: block %d has no id", i)
		}
		if len(block.Pos) != 3 {
			return fmt.Errorf("mcsjson: block %d has a %d-element position", i, len(block.Pos))
		}
		blob, err := stableNBT(block.NBT)
		if err != nil {
			return fmt.Errorf("mcsjson: block %d: %w", i, err)
		}
		if err := encoder.AddBlock(block.ID, block.Pos[0], block.Pos[1], block.Pos[2], blob); err != nil {
			return err
		}
	}
	return nil
}

// Unpack decodes the whole file and writes the interchange document to w.
// Chunks come out in on-disk order, records in insertion order.
func Unpack(decoder *mcstream.Decoder, w io.Writer) error {
	blocks, err := decoder.Blocks()
	if err != nil {
		return err
	}

	header := decoder.Header()
	doc := Document{
		Format:  Format,
		Version: fmt.Sprintf("%d.%d", header.VersionMajor(), header.VersionMinor()),
		Blocks:  make([]BlockEntry, 0, len(blocks)),
	}
	for _, block := range blocks {
		entry := BlockEntry{
			ID:  block.ID,
			Pos: []int32{block.Pos.X, block.Pos.Y, block.Pos.Z},
		}
		if block.NBT != nil {
			value, err := blobToJSON(block.NBT)
			if err != nil {
				return fmt.Errorf("mcsjson: block at %v: %w", entry.Pos, err)
			}
			entry.NBT = value
		}
		doc.Blocks = append(doc.Blocks, entry)
	}

	out := json.NewEncoder(w)
	out.SetIndent("", "  ")
	return out.Encode(&doc)
}

// stableNBT turns a document NBT value into the bytes stored in the file.
// Re-marshalling through a decoded value normalizes whitespace and sorts
// object keys, which is what makes the encoding byte-stable. JSON null means
// no NBT at all.
func stableNBT(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("invalid nbt value: %w", err)
	}
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

// blobToJSON renders a stored NBT blob as a JSON value. Blobs written by
// Pack are JSON already; anything else is treated as binary NBT (files
// produced by other tooling store raw compound tags) and decoded through
// go-mc. The leading byte of a binary blob must be a real tag type.
func blobToJSON(blob []byte) (json.RawMessage, error) {
	if json.Valid(blob) {
		return json.RawMessage(blob), nil
	}
	if len(blob) == 0 || blob[0] > 12 {
		return nil, fmt.Errorf("nbt blob is neither JSON nor binary NBT")
	}
	var value interface{}
	if err := nbt.Unmarshal(blob, &value); err != nil {
		return nil, fmt.Errorf("decoding binary nbt: %w", err)
	}
	return json.Marshal(value)
}
