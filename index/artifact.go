package index

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/vecglobe/vecglobe/codec"
	"github.com/vecglobe/vecglobe/hnsw"
)

// Artifact container layout:
//
//	magic "VGART" | version byte | codec-name length byte | codec name |
//	uint32 header length | codec-encoded ArtifactInfo |
//	zstd-compressed gob graph
//
// The preamble up to the codec name is codec-independent, so any reader can
// select the right codec by name before decoding the header. This is the one
// place that speaks the on-disk index format; everything else trades in
// opaque bytes.

var artifactMagic = [5]byte{'V', 'G', 'A', 'R', 'T'}

const artifactVersion = 1

// ErrCorruptArtifact is returned when serialized index bytes cannot be
// decoded.
var ErrCorruptArtifact = errors.New("corrupt index artifact")

// ArtifactInfo is the metadata stored alongside serialized index bytes.
type ArtifactInfo struct {
	Dimension      int `json:"dimension"`
	Count          int `json:"count"`
	EFConstruction int `json:"efConstruction"`
	EFSearch       int `json:"efSearch"`
}

// Export serializes the approximate index into a self-describing artifact.
func (a *ANN) Export(c codec.Codec) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}

	info := ArtifactInfo{
		Dimension:      a.Dimension(),
		Count:          a.Len(),
		EFConstruction: a.graph.EFConstruction(),
		EFSearch:       a.EFSearch(),
	}
	header, err := c.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("index: encode artifact header: %w", err)
	}

	graph, err := a.graph.GobEncode()
	if err != nil {
		return nil, fmt.Errorf("index: encode graph: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("index: create compressor: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(graph, nil)

	name := c.Name()
	out := make([]byte, 0, len(artifactMagic)+2+len(name)+4+len(header)+len(compressed))
	out = append(out, artifactMagic[:]...)
	out = append(out, artifactVersion, byte(len(name)))
	out = append(out, name...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(header)))
	out = append(out, header...)
	out = append(out, compressed...)
	return out, nil
}

// ImportArtifact restores an approximate index from artifact bytes.
func ImportArtifact(data []byte) (*ANN, ArtifactInfo, error) {
	var info ArtifactInfo

	rest, name, err := parsePreamble(data)
	if err != nil {
		return nil, info, err
	}

	c, ok := codec.ByName(name)
	if !ok {
		return nil, info, fmt.Errorf("%w: unknown codec %q", ErrCorruptArtifact, name)
	}

	if len(rest) < 4 {
		return nil, info, ErrCorruptArtifact
	}
	headerLen := int(binary.BigEndian.Uint32(rest))
	rest = rest[4:]
	if len(rest) < headerLen {
		return nil, info, ErrCorruptArtifact
	}
	if err := c.Unmarshal(rest[:headerLen], &info); err != nil {
		return nil, info, fmt.Errorf("%w: decode header: %w", ErrCorruptArtifact, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, info, fmt.Errorf("index: create decompressor: %w", err)
	}
	defer dec.Close()

	graphBytes, err := dec.DecodeAll(rest[headerLen:], nil)
	if err != nil {
		return nil, info, fmt.Errorf("%w: decompress graph: %w", ErrCorruptArtifact, err)
	}

	graph := &hnsw.HNSW{}
	if err := graph.GobDecode(graphBytes); err != nil {
		return nil, info, fmt.Errorf("%w: decode graph: %w", ErrCorruptArtifact, err)
	}

	ann := &ANN{graph: graph}
	if ann.Dimension() != info.Dimension || ann.Len() != info.Count {
		return nil, info, fmt.Errorf("%w: header disagrees with graph (dimension %d/%d, count %d/%d)",
			ErrCorruptArtifact, info.Dimension, ann.Dimension(), info.Count, ann.Len())
	}

	return ann, info, nil
}

// PeekArtifactInfo decodes only the artifact metadata, without inflating the
// graph. Used to validate cached bytes against the current dataset cheaply.
func PeekArtifactInfo(data []byte) (ArtifactInfo, error) {
	var info ArtifactInfo

	rest, name, err := parsePreamble(data)
	if err != nil {
		return info, err
	}
	c, ok := codec.ByName(name)
	if !ok {
		return info, fmt.Errorf("%w: unknown codec %q", ErrCorruptArtifact, name)
	}
	if len(rest) < 4 {
		return info, ErrCorruptArtifact
	}
	headerLen := int(binary.BigEndian.Uint32(rest))
	rest = rest[4:]
	if len(rest) < headerLen {
		return info, ErrCorruptArtifact
	}
	if err := c.Unmarshal(rest[:headerLen], &info); err != nil {
		return info, fmt.Errorf("%w: decode header: %w", ErrCorruptArtifact, err)
	}
	return info, nil
}

// parsePreamble validates magic and version and returns the codec name plus
// the remaining bytes.
func parsePreamble(data []byte) (rest []byte, codecName string, err error) {
	if len(data) < len(artifactMagic)+2 {
		return nil, "", ErrCorruptArtifact
	}
	if string(data[:len(artifactMagic)]) != string(artifactMagic[:]) {
		return nil, "", fmt.Errorf("%w: bad magic", ErrCorruptArtifact)
	}
	data = data[len(artifactMagic):]

	if data[0] != artifactVersion {
		return nil, "", fmt.Errorf("%w: unsupported version %d", ErrCorruptArtifact, data[0])
	}
	nameLen := int(data[1])
	data = data[2:]
	if len(data) < nameLen {
		return nil, "", ErrCorruptArtifact
	}
	return data[nameLen:], string(data[:nameLen]), nil
}
