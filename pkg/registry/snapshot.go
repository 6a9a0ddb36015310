package registry

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// SnapshotVersion is the version written by Save.
const SnapshotVersion int32 = 2

// Snapshot is the decoded form of a persisted registry.
type Snapshot struct {
	Version       int32
	Groups        map[string][]*resource.Resource
	Untransformed []*resource.Resource
}

// EncodeSnapshot writes the version header followed by the group map and the
// untransformed list.
func EncodeSnapshot(groups map[string][]*resource.Resource, untransformed []*resource.Resource) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, SnapshotVersion); err != nil {
		return nil, fmt.Errorf("failed to write snapshot version: %w", err)
	}

	if groups == nil {
		groups = map[string][]*resource.Resource{}
	}
	if untransformed == nil {
		untransformed = []*resource.Resource{}
	}

	enc := json.NewEncoder(&buf)
	if err := enc.Encode(groups); err != nil {
		return nil, fmt.Errorf("failed to encode resource groups: %w", err)
	}
	if err := enc.Encode(untransformed); err != nil {
		return nil, fmt.Errorf("failed to encode untransformed resources: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reads a snapshot of version 1 or 2. Version 1 snapshots carry
// no untransformed list.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	r := bytes.NewReader(data)

	var version int32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read snapshot version: %w", err)
	}
	if version <= 0 || version > SnapshotVersion {
		return nil, fmt.Errorf("unknown snapshot version %d", version)
	}

	snap := &Snapshot{Version: version}
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap.Groups); err != nil {
		return nil, fmt.Errorf("failed to decode resource groups: %w", err)
	}
	if version == SnapshotVersion {
		if err := dec.Decode(&snap.Untransformed); err != nil {
			return nil, fmt.Errorf("failed to decode untransformed resources: %w", err)
		}
	}
	return snap, nil
}
