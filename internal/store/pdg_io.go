package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"time"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/types"
)

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func encodeEdgeMeta(m *pdg.EdgeMeta) []byte {
	if m == nil {
		return nil
	}
	buf := make([]byte, 8+len(m.VariableName))
	binary.LittleEndian.PutUint64(buf, uint64(m.CallCount))
	copy(buf[8:], m.VariableName)
	return buf
}

func decodeEdgeMeta(buf []byte) *pdg.EdgeMeta {
	if len(buf) < 8 {
		return nil
	}
	return &pdg.EdgeMeta{
		CallCount:    int(binary.LittleEndian.Uint64(buf)),
		VariableName: string(buf[8:]),
	}
}

// PutNode upserts a single node row inside tx.
func PutNode(ctx context.Context, tx *sql.Tx, n pdg.Node) error {
	now := time.Now().UnixNano()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (project_id, node_id, file_path, symbol, kind, language,
			signature_blob, complexity, content_hash, embedding_blob, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, node_id) DO UPDATE SET
			file_path      = excluded.file_path,
			symbol         = excluded.symbol,
			kind           = excluded.kind,
			language       = excluded.language,
			signature_blob = excluded.signature_blob,
			complexity     = excluded.complexity,
			content_hash   = excluded.content_hash,
			embedding_blob = excluded.embedding_blob,
			updated_at     = excluded.updated_at`,
		string(n.Project), uint64(n.ID), n.FilePath, n.QualifiedName, int(n.Kind), n.Language,
		pdg.EncodeNode(n), n.ComplexityScore, n.ContentHash.ToHex(), encodeEmbedding(n.Embedding),
		now, now)
	return err
}

// GetNode loads one node row.
func (s *Store) GetNode(ctx context.Context, project types.ProjectID, id pdg.NodeID) (pdg.Node, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT signature_blob FROM nodes WHERE project_id = ? AND node_id = ?",
		string(project), uint64(id)).Scan(&blob)
	if err == sql.ErrNoRows {
		return pdg.Node{}, false, nil
	}
	if err != nil {
		return pdg.Node{}, false, lcierr.NewIoError("read node", err)
	}
	n, err := pdg.DecodeNode(blob)
	if err != nil {
		return pdg.Node{}, false, err
	}
	return n, true, nil
}

// DeleteByFile removes a file's node rows, their edges, and the file
// snapshot inside tx.
func DeleteByFile(ctx context.Context, tx *sql.Tx, project types.ProjectID, path string) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT node_id FROM nodes WHERE project_id = ? AND file_path = ?",
		string(project), path)
	if err != nil {
		return err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM edges WHERE project_id = ? AND (from_node = ? OR to_node = ?)",
			string(project), id, id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM nodes WHERE project_id = ? AND file_path = ?",
		string(project), path); err != nil {
		return err
	}
	return DeleteFileSnapshot(ctx, tx, project, path)
}

// PutEdge upserts an edge row inside tx.
func PutEdge(ctx context.Context, tx *sql.Tx, project types.ProjectID, e pdg.Edge) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO edges (project_id, from_node, to_node, kind, meta_blob)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, from_node, to_node, kind) DO UPDATE SET
			meta_blob = excluded.meta_blob`,
		string(project), uint64(e.From), uint64(e.To), int(e.Kind), encodeEdgeMeta(e.Meta))
	return err
}

// EdgesBy returns a node's edges, optionally filtered by kind, outgoing when
// out is true and incoming otherwise.
func (s *Store) EdgesBy(ctx context.Context, project types.ProjectID, id pdg.NodeID, kind *types.EdgeKind, out bool) ([]pdg.Edge, error) {
	col := "from_node"
	if !out {
		col = "to_node"
	}
	query := "SELECT from_node, to_node, kind, meta_blob FROM edges WHERE project_id = ? AND " + col + " = ?"
	args := []any{string(project), uint64(id)}
	if kind != nil {
		query += " AND kind = ?"
		args = append(args, int(*kind))
	}
	query += " ORDER BY from_node, to_node, kind"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, lcierr.NewIoError("read edges", err)
	}
	defer rows.Close()

	var edges []pdg.Edge
	for rows.Next() {
		var from, to uint64
		var k int
		var meta []byte
		if err := rows.Scan(&from, &to, &k, &meta); err != nil {
			return nil, lcierr.NewIoError("scan edge", err)
		}
		edges = append(edges, pdg.Edge{
			From: pdg.NodeID(from),
			To:   pdg.NodeID(to),
			Kind: types.EdgeKind(k),
			Meta: decodeEdgeMeta(meta),
		})
	}
	return edges, rows.Err()
}

// DefaultBatchSize bounds how many rows one SavePDG transaction writes.
const DefaultBatchSize = 512

// SavePDG replaces a project's persisted graph, one transaction per batch
// of batchSize node (or edge) rows so a large project never commits as a
// single giant write. The first transaction clears the project's rows; a
// cancellation between batches leaves only whole batches committed.
func (s *Store) SavePDG(ctx context.Context, project types.ProjectID, g *pdg.Graph, snaps []FileSnapshot, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE project_id = ?", string(project)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE project_id = ?", string(project))
		return err
	}); err != nil {
		return err
	}

	ids := g.NodeIDs()
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		if err := s.WithTx(ctx, func(tx *sql.Tx) error {
			for _, id := range batch {
				n, ok := g.GetNode(id)
				if !ok {
					continue
				}
				if err := PutNode(ctx, tx, n); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}

	edges := g.Edges()
	for start := 0; start < len(edges); start += batchSize {
		end := start + batchSize
		if end > len(edges) {
			end = len(edges)
		}
		batch := edges[start:end]
		if err := s.WithTx(ctx, func(tx *sql.Tx) error {
			for _, e := range batch {
				if err := PutEdge(ctx, tx, project, e); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return PutFileSnapshots(ctx, tx, project, snaps)
	})
}

// LoadPDG reconstructs a project's graph from its rows. Node ids are
// preserved, so ids persisted by other subsystems stay valid.
func (s *Store) LoadPDG(ctx context.Context, project types.ProjectID) (*pdg.Graph, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT signature_blob FROM nodes WHERE project_id = ? ORDER BY node_id", string(project))
	if err != nil {
		return nil, lcierr.NewIoError("read nodes", err)
	}
	var nodes []pdg.Node
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			rows.Close()
			return nil, lcierr.NewIoError("scan node", err)
		}
		n, err := pdg.DecodeNode(blob)
		if err != nil {
			rows.Close()
			return nil, err
		}
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, lcierr.NewIoError("read nodes", err)
	}

	erows, err := s.db.QueryContext(ctx,
		"SELECT from_node, to_node, kind, meta_blob FROM edges WHERE project_id = ? ORDER BY from_node, to_node, kind",
		string(project))
	if err != nil {
		return nil, lcierr.NewIoError("read edges", err)
	}
	defer erows.Close()
	var edges []pdg.Edge
	for erows.Next() {
		var from, to uint64
		var k int
		var meta []byte
		if err := erows.Scan(&from, &to, &k, &meta); err != nil {
			return nil, lcierr.NewIoError("scan edge", err)
		}
		edges = append(edges, pdg.Edge{
			From: pdg.NodeID(from),
			To:   pdg.NodeID(to),
			Kind: types.EdgeKind(k),
			Meta: decodeEdgeMeta(meta),
		})
	}
	if err := erows.Err(); err != nil {
		return nil, lcierr.NewIoError("read edges", err)
	}
	return pdg.RestoreGraph(nodes, edges)
}

// GlobalSymbol is a row of the cross-project symbol table.
type GlobalSymbol struct {
	GlobalID      string
	Project       types.ProjectID
	Symbol        string
	SignatureHash string
	Visibility    string
	NodeID        pdg.NodeID
	IndexedAt     time.Time
}

// PutGlobalSymbols upserts global symbol rows in one transaction.
func (s *Store) PutGlobalSymbols(ctx context.Context, syms []GlobalSymbol) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO global_symbols (global_id, project_id, symbol, signature_hash, visibility, node_id, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(global_id) DO UPDATE SET
				visibility = excluded.visibility,
				node_id    = excluded.node_id,
				indexed_at = excluded.indexed_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, g := range syms {
			if _, err := stmt.ExecContext(ctx, g.GlobalID, string(g.Project), g.Symbol,
				g.SignatureHash, g.Visibility, uint64(g.NodeID), g.IndexedAt.UnixNano()); err != nil {
				return err
			}
		}
		return nil
	})
}

// GlobalSymbolsByName returns every project's rows for one symbol.
func (s *Store) GlobalSymbolsByName(ctx context.Context, symbol string) ([]GlobalSymbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT global_id, project_id, symbol, signature_hash, visibility, node_id, indexed_at
		FROM global_symbols WHERE symbol = ? ORDER BY project_id, signature_hash`, symbol)
	if err != nil {
		return nil, lcierr.NewIoError("read global symbols", err)
	}
	defer rows.Close()

	var out []GlobalSymbol
	for rows.Next() {
		var g GlobalSymbol
		var project string
		var nodeID uint64
		var at int64
		if err := rows.Scan(&g.GlobalID, &project, &g.Symbol, &g.SignatureHash, &g.Visibility, &nodeID, &at); err != nil {
			return nil, lcierr.NewIoError("scan global symbol", err)
		}
		g.Project = types.ProjectID(project)
		g.NodeID = pdg.NodeID(nodeID)
		g.IndexedAt = time.Unix(0, at)
		out = append(out, g)
	}
	return out, rows.Err()
}
