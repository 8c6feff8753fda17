// Package coordinatorlog replays an ordered, append-only configuration
// log into a key/value snapshot. Nothing in this repository feeds that
// snapshot into chooser.Compose: the demo's selector stack is configured
// from the static YAML loaded at process start (see
// internal/chooserconfig).
package coordinatorlog

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Key identifies one coordinator-log entry: a (version, type, name)
// triple. Two Key values that describe the same logical entry MUST
// serialize to byte-identical bytes regardless of the order their
// fields were populated in — the canonical key ordering invariant —
// because the log's compaction keys on these bytes. (Reader's snapshot
// map is keyed by the decoded key name alone.)
type Key struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	Name    string `json:"key"`
}

// MarshalCanonicalJSON renders k as a JSON object with fields always in
// the same order (version, type, key), independent of how the struct
// was populated. encoding/json already emits struct fields in
// declaration order, which is why Key's field order above is the
// canonical order — this method exists so that invariant is explicit
// and tested, not an accident of struct layout.
func (k Key) MarshalCanonicalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"version":`)
	versionBytes, err := json.Marshal(k.Version)
	if err != nil {
		return nil, err
	}
	buf.Write(versionBytes)

	buf.WriteString(`,"type":`)
	typeBytes, err := json.Marshal(k.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(typeBytes)

	buf.WriteString(`,"key":`)
	nameBytes, err := json.Marshal(k.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(nameBytes)
	buf.WriteString(`}`)

	return buf.Bytes(), nil
}

// RecordType enumerates the coordinator-log record types this reader
// understands. Records of any other type are ignored, per spec, rather
// than rejected — a forward-compatibility allowance for record types
// introduced by other readers sharing the same log.
type RecordType string

// SetConfig is the only record type this reader acts on: it either
// inserts/overwrites a key (value present) or deletes it (value
// absent).
const SetConfig RecordType = "SetConfig"

// Message is one decoded coordinator-log record: a key plus an
// optional value. A Message whose Value is nil is a delete.
type Message struct {
	Key   Key
	Type  RecordType
	Value map[string]interface{}
}

// MarshalCanonicalValueJSON renders a value mapping with its top-level
// keys sorted, so two producers populating the same logical value in
// different map-iteration order still emit identical bytes — the same
// invariant as Key, extended to the value side for property tests that
// compare whole records.
func MarshalCanonicalValueJSON(value map[string]interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := json.Marshal(value[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
