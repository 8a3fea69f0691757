// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout for graph snapshots:
//
//	ccg:snap:{projectHash}:{snapshotID}:data → gzip(JSON(SerializableGraph))
//	ccg:snap:{projectHash}:{snapshotID}:meta → JSON(SnapshotMetadata)
//	ccg:snap:{projectHash}:latest            → snapshotID
//	ccg:snapidx:{snapshotID}                 → projectHash
const (
	keyPrefixSnap      = "ccg:snap:"
	keyPrefixSnapIndex = "ccg:snapidx:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// DefaultSnapshotListLimit caps List results when no limit is given.
const DefaultSnapshotListLimit = 100

var (
	// ErrSnapshotNotFound indicates an unknown snapshot id or a project
	// without snapshots.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupt indicates a payload that fails its integrity check.
	ErrSnapshotCorrupt = errors.New("snapshot payload corrupt")
)

// SnapshotMetadata describes one saved graph.
type SnapshotMetadata struct {
	// SnapshotID is SHA-256(root, graph hash, save time)[:16] in hex.
	SnapshotID string `json:"snapshot_id"`

	// ProjectRoot is the absolute root the graph was built from.
	ProjectRoot string `json:"project_root"`

	// ProjectHash groups snapshots of one root, see ProjectHash.
	ProjectHash string `json:"project_hash"`

	// GraphHash is the content hash of the saved graph.
	GraphHash string `json:"graph_hash"`

	// Label is an optional human-readable label.
	Label string `json:"label,omitempty"`

	// CreatedAtMilli is the save time in Unix milliseconds UTC.
	CreatedAtMilli int64 `json:"created_at_milli"`

	DeclarationCount int `json:"declaration_count"`
	EdgeCount        int `json:"edge_count"`
	DiagnosticCount  int `json:"diagnostic_count"`

	// SchemaVersion is the graph format version of the payload.
	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the gzip payload size in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA-256 of the gzip payload.
	ContentHash string `json:"content_hash"`
}

// CreatedAt returns the save time.
func (m *SnapshotMetadata) CreatedAt() time.Time {
	return time.UnixMilli(m.CreatedAtMilli).UTC()
}

// SnapshotManager stores graph snapshots in BadgerDB.
//
// Description:
//
//	Each snapshot is the exported graph as gzip-compressed JSON plus a
//	metadata record for listing. A per-project latest pointer supports
//	diffing a fresh build against the previous one.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSnapshotManager creates a manager over an opened database.
//
// Inputs:
//
//	db - An opened BadgerDB instance. Must not be nil. The caller closes it.
//	logger - Logger for diagnostic output. Must not be nil.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, errors.New("badger db must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	return &SnapshotManager{db: db, logger: logger, now: time.Now}, nil
}

// ProjectHash returns the key prefix used for a project root.
func ProjectHash(projectRoot string) string {
	return hashString(projectRoot)[:16]
}

type snapshotKeys struct {
	data, meta, latest, index []byte
}

func keysFor(projectHash, snapshotID string) snapshotKeys {
	base := keyPrefixSnap + projectHash + ":"
	return snapshotKeys{
		data:   []byte(base + snapshotID + keySuffixData),
		meta:   []byte(base + snapshotID + keySuffixMeta),
		latest: []byte(keyPrefixSnap + projectHash + keySuffixLatest),
		index:  []byte(keyPrefixSnapIndex + snapshotID),
	}
}

// Save persists a graph and moves the project's latest pointer to it.
func (m *SnapshotManager) Save(ctx context.Context, g *CodeContextGraph, label string) (*SnapshotMetadata, error) {
	if g == nil {
		return nil, errors.New("graph must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := compressGraph(g)
	if err != nil {
		return nil, err
	}

	created := m.now().UTC()
	projectHash := ProjectHash(g.ProjectRoot())
	meta := &SnapshotMetadata{
		SnapshotID:       hashString(fmt.Sprintf("%s:%s:%d", g.ProjectRoot(), g.Hash(), created.UnixNano()))[:16],
		ProjectRoot:      g.ProjectRoot(),
		ProjectHash:      projectHash,
		GraphHash:        g.Hash(),
		Label:            label,
		CreatedAtMilli:   created.UnixMilli(),
		DeclarationCount: g.DeclarationCount(),
		EdgeCount:        g.EdgeCount(),
		DiagnosticCount:  len(g.diagnostics),
		SchemaVersion:    SchemaVersion,
		CompressedSize:   int64(len(payload)),
		ContentHash:      hashBytes(payload),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	keys := keysFor(projectHash, meta.SnapshotID)
	err = m.db.Update(func(txn *badger.Txn) error {
		for _, kv := range [][2][]byte{
			{keys.data, payload},
			{keys.meta, metaJSON},
			{keys.latest, []byte(meta.SnapshotID)},
			{keys.index, []byte(projectHash)},
		} {
			if err := txn.Set(kv[0], kv[1]); err != nil {
				return fmt.Errorf("storing %s: %w", kv[0], err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", meta.SnapshotID),
		slog.String("project_root", meta.ProjectRoot),
		slog.Int("declarations", meta.DeclarationCount),
		slog.Int("edges", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// SaveIfChanged saves g unless the project's latest snapshot already has
// the same graph hash. The returned bool reports whether a snapshot was
// written; when false the latest metadata is returned.
func (m *SnapshotManager) SaveIfChanged(ctx context.Context, g *CodeContextGraph, label string) (*SnapshotMetadata, bool, error) {
	if g == nil {
		return nil, false, errors.New("graph must not be nil")
	}
	latest, err := m.latestMeta(ProjectHash(g.ProjectRoot()))
	switch {
	case err == nil && latest.GraphHash == g.Hash():
		return latest, false, nil
	case err != nil && !errors.Is(err, ErrSnapshotNotFound):
		return nil, false, err
	}
	meta, err := m.Save(ctx, g, label)
	return meta, err == nil, err
}

// Load restores a snapshot by id.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*CodeContextGraph, *SnapshotMetadata, error) {
	if snapshotID == "" {
		return nil, nil, errors.New("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	projectHash, err := m.getValue([]byte(keyPrefixSnapIndex + snapshotID))
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	return m.loadByKeys(keysFor(projectHash, snapshotID))
}

// LoadLatest restores the most recent snapshot of a project.
func (m *SnapshotManager) LoadLatest(ctx context.Context, projectHash string) (*CodeContextGraph, *SnapshotMetadata, error) {
	if projectHash == "" {
		return nil, nil, errors.New("project hash must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	snapshotID, err := m.getValue(keysFor(projectHash, "").latest)
	if err != nil {
		return nil, nil, fmt.Errorf("latest snapshot of %s: %w", projectHash, err)
	}
	return m.loadByKeys(keysFor(projectHash, snapshotID))
}

// List returns snapshot metadata newest first. An empty projectHash lists
// every project. A non-positive limit uses DefaultSnapshotListLimit.
func (m *SnapshotManager) List(ctx context.Context, projectHash string, limit int) ([]*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSnapshotListLimit
	}

	prefix := []byte(keyPrefixSnap)
	if projectHash != "" {
		prefix = []byte(keyPrefixSnap + projectHash + ":")
	}

	var results []*SnapshotMetadata
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}
			var meta SnapshotMetadata
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &meta) }); err != nil {
				m.logger.Warn("skipping corrupt snapshot metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CreatedAtMilli != results[j].CreatedAtMilli {
			return results[i].CreatedAtMilli > results[j].CreatedAtMilli
		}
		return results[i].SnapshotID < results[j].SnapshotID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot. The latest pointer is cleared if it named it.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if snapshotID == "" {
		return errors.New("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	projectHash, err := m.getValue([]byte(keyPrefixSnapIndex + snapshotID))
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	keys := keysFor(projectHash, snapshotID)

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, k := range [][]byte{keys.data, keys.meta, keys.index} {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting %s: %w", k, err)
			}
		}
		item, err := txn.Get(keys.latest)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(current) == snapshotID {
			return txn.Delete(keys.latest)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// Prune deletes all but the newest keep snapshots of a project and
// returns how many were removed.
func (m *SnapshotManager) Prune(ctx context.Context, projectHash string, keep int) (int, error) {
	if projectHash == "" {
		return 0, errors.New("project hash must not be empty")
	}
	all, err := m.List(ctx, projectHash, int(^uint(0)>>1))
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	removed := 0
	for _, meta := range all[min(keep, len(all)):] {
		if err := m.Delete(ctx, meta.SnapshotID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (m *SnapshotManager) latestMeta(projectHash string) (*SnapshotMetadata, error) {
	snapshotID, err := m.getValue(keysFor(projectHash, "").latest)
	if err != nil {
		return nil, err
	}
	raw, err := m.getValue(keysFor(projectHash, snapshotID).meta)
	if err != nil {
		return nil, err
	}
	var meta SnapshotMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrSnapshotCorrupt, err)
	}
	return &meta, nil
}

// getValue reads one key, mapping a missing key to ErrSnapshotNotFound.
func (m *SnapshotManager) getValue(key []byte) (string, error) {
	var val []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrSnapshotNotFound
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// loadByKeys reads, verifies and decodes a snapshot.
func (m *SnapshotManager) loadByKeys(keys snapshotKeys) (*CodeContextGraph, *SnapshotMetadata, error) {
	var payload, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keys.data)
		if err != nil {
			return err
		}
		if payload, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get(keys.meta)
		if err != nil {
			return err
		}
		metaJSON, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata: %v", ErrSnapshotCorrupt, err)
	}
	if got := hashBytes(payload); got != meta.ContentHash {
		return nil, nil, fmt.Errorf("%w: content hash %s, expected %s", ErrSnapshotCorrupt, got, meta.ContentHash)
	}

	g, err := decompressGraph(payload)
	if err != nil {
		return nil, nil, err
	}
	return g, &meta, nil
}

func compressGraph(g *CodeContextGraph) ([]byte, error) {
	data, err := json.Marshal(g.ToSerializable())
	if err != nil {
		return nil, fmt.Errorf("marshaling graph: %w", err)
	}

	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(data); err != nil {
		return nil, fmt.Errorf("compressing graph: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressGraph(payload []byte) (*CodeContextGraph, error) {
	gr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	var sg SerializableGraph
	if err := json.Unmarshal(data, &sg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return FromSerializable(&sg)
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
