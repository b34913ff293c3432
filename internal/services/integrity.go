// Package services - IntegrityService keeps a Merkle tree over every status
// history hash for tamper-evident auditing.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/store"
)

// IntegrityService manages the Merkle tree over status history
type IntegrityService struct {
	mu            sync.RWMutex
	leaves        []string
	layers        [][]string
	root          string
	lastBuildTime time.Time
	logger        *zap.SugaredLogger
}

// NewIntegrityService creates an empty tree
func NewIntegrityService(logger *zap.SugaredLogger) *IntegrityService {
	return &IntegrityService{logger: logger}
}

// BuildFromHashes rebuilds the tree from history entry hashes in insertion
// order.
func (m *IntegrityService) BuildFromHashes(hashes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaves = append([]string(nil), hashes...)
	m.buildTree()
	m.lastBuildTime = time.Now()

	m.logger.Infow("Merkle tree rebuilt",
		"leaves", len(m.leaves),
		"root", m.root,
	)
}

// Root returns the current Merkle root, empty for an empty history.
func (m *IntegrityService) Root() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

func (m *IntegrityService) LeafCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leaves)
}

func (m *IntegrityService) LastBuildTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBuildTime
}

// Proof returns the inclusion proof of the leaf at index.
func (m *IntegrityService) Proof(index int) (models.MerkleProof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= len(m.leaves) {
		return models.MerkleProof{}, invalid("index %d out of range (0-%d)", index, len(m.leaves)-1)
	}

	proof := models.MerkleProof{
		LeafHash: m.leaves[index],
		Root:     m.root,
		Index:    index,
		Proof:    make([]models.ProofStep, 0, len(m.layers)),
	}

	current := index
	for _, layer := range m.layers[:len(m.layers)-1] {
		step := models.ProofStep{Position: "right"}
		sibling := current + 1
		if current%2 == 1 {
			sibling = current - 1
			step.Position = "left"
		}
		// an odd node is paired with itself
		if sibling >= len(layer) {
			sibling = current
		}
		step.Hash = layer[sibling]
		proof.Proof = append(proof.Proof, step)
		current /= 2
	}

	proof.Verified = VerifyProof(proof)
	return proof, nil
}

// VerifyProof recomputes the root from the leaf and the proof path.
func VerifyProof(p models.MerkleProof) bool {
	if p.LeafHash == "" || p.Root == "" {
		return false
	}
	h := p.LeafHash
	for _, step := range p.Proof {
		switch step.Position {
		case "left":
			h = hashPair(step.Hash, h)
		case "right":
			h = hashPair(h, step.Hash)
		default:
			return false
		}
	}
	return h == p.Root
}

// buildTree constructs the tree from the leaves. Caller holds the write lock.
func (m *IntegrityService) buildTree() {
	if len(m.leaves) == 0 {
		m.root = ""
		m.layers = nil
		return
	}

	currentLayer := make([]string, len(m.leaves))
	copy(currentLayer, m.leaves)
	m.layers = [][]string{currentLayer}

	for len(currentLayer) > 1 {
		nextLayer := make([]string, 0, (len(currentLayer)+1)/2)
		for i := 0; i < len(currentLayer); i += 2 {
			left := currentLayer[i]
			right := left
			if i+1 < len(currentLayer) {
				right = currentLayer[i+1]
			}
			nextLayer = append(nextLayer, hashPair(left, right))
		}
		m.layers = append(m.layers, nextLayer)
		currentLayer = nextLayer
	}

	m.root = currentLayer[0]
}

func hashPair(left, right string) string {
	h := sha256.New()
	h.Write([]byte(left + right))
	return hex.EncodeToString(h.Sum(nil))
}

// IntegrityWorker periodically rebuilds the Merkle tree from the store
type IntegrityWorker struct {
	tree    *IntegrityService
	history store.HistoryReader
	logger  *zap.SugaredLogger
}

// NewIntegrityWorker creates a new background integrity worker
func NewIntegrityWorker(tree *IntegrityService, history store.HistoryReader, logger *zap.SugaredLogger) *IntegrityWorker {
	return &IntegrityWorker{tree: tree, history: history, logger: logger}
}

// Start begins the periodic rebuild loop
func (w *IntegrityWorker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := w.Rebuild(ctx); err != nil {
		w.logger.Errorw("Merkle tree rebuild failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Integrity worker stopped")
			return
		case <-ticker.C:
			if err := w.Rebuild(ctx); err != nil {
				w.logger.Errorw("Merkle tree rebuild failed", "error", err)
			}
		}
	}
}

// Rebuild reloads every history hash and rebuilds the tree.
func (w *IntegrityWorker) Rebuild(ctx context.Context) error {
	hashes, err := w.history.AllHistoryHashes(ctx)
	if err != nil {
		return fmt.Errorf("load history hashes: %w", err)
	}
	w.tree.BuildFromHashes(hashes)
	return nil
}
