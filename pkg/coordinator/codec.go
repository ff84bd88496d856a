// Copyright 2025 Takhin Data, Inc.

package coordinator

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/brokercore/groupcoord/pkg/mempool"
)

// Key schema versions. OffsetKey is schema 0 or 1 (identical wire shape;
// 1 exists only because the real protocol bumped the key version when it
// introduced OffsetValue v1, without changing OffsetKey itself). GroupKey
// is schema 2. Writers always emit the newest key schema for the kind
// they're encoding.
const (
	offsetKeySchemaV0 = 0
	offsetKeySchemaV1 = 1
	groupKeySchemaV2  = 2
)

// Offset value schema versions. v0 is the legacy on-disk shape with only
// a commit timestamp; expiration is derived from retention at load time.
// v1 carries both timestamps explicitly. Writers always emit v1.
const (
	offsetValueSchemaV0 = 0
	offsetValueSchemaV1 = 1
)

const groupValueSchemaV0 = 0

// EncodeKey serializes an OffsetKey or GroupKey using the current writer
// schema for its kind.
func EncodeKey(key interface{}) ([]byte, error) {
	switch k := key.(type) {
	case OffsetKey:
		return encodeOffsetKey(k)
	case GroupKey:
		return encodeGroupKey(k)
	default:
		return nil, fmt.Errorf("coordinator: unsupported key type %T", key)
	}
}

func encodeOffsetKey(k OffsetKey) ([]byte, error) {
	var buf bytes.Buffer
	writeUint16(&buf, offsetKeySchemaV1)
	if err := writeString(&buf, k.Group); err != nil {
		return nil, fmt.Errorf("encode offset key group: %w", err)
	}
	if err := writeString(&buf, k.Topic); err != nil {
		return nil, fmt.Errorf("encode offset key topic: %w", err)
	}
	writeInt32(&buf, k.Partition)
	return buf.Bytes(), nil
}

func encodeGroupKey(k GroupKey) ([]byte, error) {
	var buf bytes.Buffer
	writeUint16(&buf, groupKeySchemaV2)
	if err := writeString(&buf, k.Group); err != nil {
		return nil, fmt.Errorf("encode group key: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeKey reads the schema_version envelope and dispatches to the
// matching key decoder. Returns either an OffsetKey or a GroupKey.
func DecodeKey(data []byte) (interface{}, error) {
	r := bytes.NewReader(data)
	version, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("read key schema version: %w", err)
	}

	switch version {
	case offsetKeySchemaV0, offsetKeySchemaV1:
		return decodeOffsetKey(r)
	case groupKeySchemaV2:
		return decodeGroupKey(r)
	default:
		return nil, fmt.Errorf("coordinator: unknown key schema version %d", version)
	}
}

func decodeOffsetKey(r *bytes.Reader) (OffsetKey, error) {
	group, err := readString(r)
	if err != nil {
		return OffsetKey{}, fmt.Errorf("read offset key group: %w", err)
	}
	topic, err := readString(r)
	if err != nil {
		return OffsetKey{}, fmt.Errorf("read offset key topic: %w", err)
	}
	partition, err := readInt32(r)
	if err != nil {
		return OffsetKey{}, fmt.Errorf("read offset key partition: %w", err)
	}
	return OffsetKey{Group: group, Topic: topic, Partition: partition}, nil
}

func decodeGroupKey(r *bytes.Reader) (GroupKey, error) {
	group, err := readString(r)
	if err != nil {
		return GroupKey{}, fmt.Errorf("read group key: %w", err)
	}
	return GroupKey{Group: group}, nil
}

// EncodeOffsetValue always writes the v1 schema, regardless of how the
// value was originally loaded.
func EncodeOffsetValue(v OffsetValue) ([]byte, error) {
	var buf bytes.Buffer
	writeUint16(&buf, offsetValueSchemaV1)
	writeInt64(&buf, v.Offset)
	if err := writeString(&buf, v.Metadata); err != nil {
		return nil, fmt.Errorf("encode offset value metadata: %w", err)
	}
	writeInt64(&buf, v.CommitTimestamp)
	writeInt64(&buf, v.ExpireTimestamp)
	return buf.Bytes(), nil
}

// DecodeOffsetValue reads either schema version. v0 payloads have no
// ExpireTimestamp field at all; the returned value carries the
// DefaultTimestamp sentinel in that slot, which the caller (the load
// pipeline) must resolve against the configured retention window before
// it is usable.
func DecodeOffsetValue(data []byte) (OffsetValue, error) {
	r := bytes.NewReader(data)
	version, err := readUint16(r)
	if err != nil {
		return OffsetValue{}, fmt.Errorf("read offset value schema version: %w", err)
	}

	offset, err := readInt64(r)
	if err != nil {
		return OffsetValue{}, fmt.Errorf("read offset: %w", err)
	}
	metadata, err := readString(r)
	if err != nil {
		return OffsetValue{}, fmt.Errorf("read offset metadata: %w", err)
	}
	commitTimestamp, err := readInt64(r)
	if err != nil {
		return OffsetValue{}, fmt.Errorf("read commit timestamp: %w", err)
	}

	switch version {
	case offsetValueSchemaV0:
		return OffsetValue{
			Offset:          offset,
			Metadata:        metadata,
			CommitTimestamp: commitTimestamp,
			ExpireTimestamp: DefaultTimestamp,
		}, nil
	case offsetValueSchemaV1:
		expireTimestamp, err := readInt64(r)
		if err != nil {
			return OffsetValue{}, fmt.Errorf("read expire timestamp: %w", err)
		}
		return OffsetValue{
			Offset:          offset,
			Metadata:        metadata,
			CommitTimestamp: commitTimestamp,
			ExpireTimestamp: expireTimestamp,
		}, nil
	default:
		return OffsetValue{}, fmt.Errorf("coordinator: unknown offset value schema version %d", version)
	}
}

// EncodeGroupValue serializes a group metadata snapshot using the current
// writer schema.
func EncodeGroupValue(g *GroupMetadata) ([]byte, error) {
	snap := g.snapshot()

	var buf bytes.Buffer
	writeUint16(&buf, groupValueSchemaV0)
	if err := writeString(&buf, snap.protocolType); err != nil {
		return nil, fmt.Errorf("encode protocol type: %w", err)
	}
	writeInt32(&buf, snap.generationID)
	if err := writeString(&buf, snap.protocol); err != nil {
		return nil, fmt.Errorf("encode protocol: %w", err)
	}
	if err := writeString(&buf, snap.leaderID); err != nil {
		return nil, fmt.Errorf("encode leader: %w", err)
	}

	writeInt32(&buf, int32(len(snap.members)))
	for _, m := range snap.members {
		if err := writeString(&buf, m.MemberID); err != nil {
			return nil, fmt.Errorf("encode member id: %w", err)
		}
		if err := writeString(&buf, m.ClientID); err != nil {
			return nil, fmt.Errorf("encode client id: %w", err)
		}
		if err := writeString(&buf, m.ClientHost); err != nil {
			return nil, fmt.Errorf("encode client host: %w", err)
		}
		writeInt32(&buf, m.SessionTimeoutMs)
		if err := writeBytes(&buf, m.Subscription); err != nil {
			return nil, fmt.Errorf("encode subscription: %w", err)
		}
		if err := writeBytes(&buf, m.Assignment); err != nil {
			return nil, fmt.Errorf("encode assignment: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeGroupValue reconstructs a GroupMetadata snapshot from its wire
// form. The returned value is Stable; callers that loaded it from a
// Dead tombstone's predecessor never call this (tombstones carry a null
// value and never reach the decoder).
func DecodeGroupValue(groupID string, data []byte) (*GroupMetadata, error) {
	r := bytes.NewReader(data)
	version, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("read group value schema version: %w", err)
	}
	if version != groupValueSchemaV0 {
		return nil, fmt.Errorf("coordinator: unknown group value schema version %d", version)
	}

	protocolType, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read protocol type: %w", err)
	}
	generation, err := readInt32(r)
	if err != nil {
		return nil, fmt.Errorf("read generation: %w", err)
	}
	protocol, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read protocol: %w", err)
	}
	leader, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read leader: %w", err)
	}
	numMembers, err := readInt32(r)
	if err != nil {
		return nil, fmt.Errorf("read member count: %w", err)
	}

	g := NewGroupMetadata(groupID, protocolType)
	g.SetGeneration(generation)
	g.SetProtocol(protocol)
	g.SetLeaderID(leader)
	g.TransitionTo(GroupStateStable)

	for i := int32(0); i < numMembers; i++ {
		memberID, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read member id: %w", err)
		}
		clientID, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read client id: %w", err)
		}
		clientHost, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read client host: %w", err)
		}
		sessionTimeout, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("read session timeout: %w", err)
		}
		subscription, err := readBytesPooled(r)
		if err != nil {
			return nil, fmt.Errorf("read subscription: %w", err)
		}
		assignment, err := readBytesPooled(r)
		if err != nil {
			return nil, fmt.Errorf("read assignment: %w", err)
		}
		g.AddMember(memberID, MemberMetadata{
			MemberID:         memberID,
			ClientID:         clientID,
			ClientHost:       clientHost,
			SessionTimeoutMs: sessionTimeout,
			Subscription:     subscription,
			Assignment:       assignment,
		})
	}

	return g, nil
}

// IsTombstone reports whether a decoded record represents a deletion
// marker under log compaction: a non-null key paired with a null value.
func IsTombstone(value []byte) bool {
	return value == nil
}

// --- low-level envelope helpers ---

func writeUint16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 1<<15-1 {
		return fmt.Errorf("string too long for int16 length prefix: %d bytes", len(s))
	}
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(int16(len(s))))
	buf.Write(tmp[:])
	buf.WriteString(s)
	return nil
}

func writeBytes(buf *bytes.Buffer, b []byte) error {
	if b == nil {
		writeInt32(buf, -1)
		return nil
	}
	if len(b) > 1<<31-1 {
		return fmt.Errorf("byte array too long for int32 length prefix: %d bytes", len(b))
	}
	writeInt32(buf, int32(len(b)))
	buf.Write(b)
	return nil
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var tmp [2]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(tmp[:]), nil
}

func readInt32(r *bytes.Reader) (int32, error) {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(tmp[:])), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var tmp [8]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(tmp[:])), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	length := int16(n)
	if length < 0 {
		return "", nil
	}
	buf := make([]byte, length)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readBytesPooled reads an int32-length-prefixed byte array, borrowing a
// pooled scratch buffer for the copy out of the reader and returning an
// independently-owned slice sized exactly to the payload (never the
// pool's bucket size) so the pooled buffer can be returned immediately.
func readBytesPooled(r *bytes.Reader) ([]byte, error) {
	length, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	if length == 0 {
		return []byte{}, nil
	}

	scratch := mempool.GetBuffer(int(length))
	defer mempool.PutBuffer(scratch)

	if _, err := r.Read(scratch); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, scratch)
	return out, nil
}
