// Package index provides the in-memory prefix index used to answer
// autocomplete queries: a compressed trie (radix tree) mapping phrases to
// their submission counts.
package index

import (
	"context"
	"slices"
	"strings"
	"sync"

	internalErrors "github.com/gcbaptista/go-autocomplete/internal/errors"
	"github.com/gcbaptista/go-autocomplete/model"
)

// nodeID addresses a node in the arena. IDs are never reused or invalidated,
// so re-parenting a subtree during an edge split is a map assignment.
type nodeID uint32

const rootID nodeID = 0

// cancelCheckInterval is how many nodes a collection walk visits between
// context checks.
const cancelCheckInterval = 256

// trieNode is a single edge/vertex of the radix tree.
// count > 0 marks the end of a complete phrase; count == 0 is a pure branch point.
// Children are keyed by the first byte of their label: siblings never share a
// common prefix, so the first byte identifies the child uniquely and does not
// change when a child's label is shortened by a split.
type trieNode struct {
	label    string
	count    int64
	children map[byte]nodeID
}

// PrefixIndex is a concurrency-safe radix tree of phrase counts.
// Searches share a read lock; Insert and SetCount take the write lock for the
// whole walk, so an edge split is never visible half-done.
type PrefixIndex struct {
	mu      sync.RWMutex
	nodes   []trieNode
	phrases int
}

// New creates an empty PrefixIndex holding only the root node.
func New() *PrefixIndex {
	return &PrefixIndex{
		nodes: []trieNode{{}},
	}
}

// Insert records one more occurrence of phrase.
func (p *PrefixIndex) Insert(phrase string) error {
	if phrase == "" {
		return internalErrors.NewValidationError("phrase", "phrase cannot be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.locate(phrase)
	if p.nodes[id].count == 0 {
		p.phrases++
	}
	p.nodes[id].count++
	return nil
}

// SetCount overwrites the count of phrase with an authoritative value,
// creating the path in a single pass when the phrase is not indexed yet.
// The resulting tree has the same shape as count repeated Inserts would give.
// A count of zero hides an existing phrase from results and never creates nodes.
func (p *PrefixIndex) SetCount(phrase string, count int64) error {
	if phrase == "" {
		return internalErrors.NewValidationError("phrase", "phrase cannot be empty")
	}
	if count < 0 {
		return internalErrors.NewValidationError("count", "count cannot be negative")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id, found := p.find(phrase)
	if !found {
		if count == 0 {
			return nil
		}
		id = p.locate(phrase)
	}

	switch {
	case p.nodes[id].count == 0 && count > 0:
		p.phrases++
	case p.nodes[id].count > 0 && count == 0:
		p.phrases--
	}
	p.nodes[id].count = count
	return nil
}

// Count returns the exact count of phrase and whether it is indexed.
func (p *PrefixIndex) Count(phrase string) (int64, bool) {
	if phrase == "" {
		return 0, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	id, found := p.find(phrase)
	if !found || p.nodes[id].count == 0 {
		return 0, false
	}
	return p.nodes[id].count, true
}

// Len returns the number of complete phrases in the index.
func (p *PrefixIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phrases
}

// Nodes returns the number of trie nodes, root included.
func (p *PrefixIndex) Nodes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.nodes)
}

// Search returns up to topK phrases starting with prefix, ordered by count
// descending and then by phrase ascending. An empty prefix ranks the whole index.
// A prefix absent from the index yields an empty, non-nil slice.
func (p *PrefixIndex) Search(ctx context.Context, prefix string, topK int) ([]model.Suggestion, error) {
	if topK < 1 {
		return nil, internalErrors.NewValidationError("topK", "topK must be at least 1")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	start, base, found := p.descend(prefix)
	if !found {
		return []model.Suggestion{}, nil
	}

	results, err := p.collect(ctx, start, base)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, compareSuggestions)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// locate walks phrase from the root and returns the node it ends on.
// Missing paths are created and partially-matched edges are split on the way.
// Callers must hold the write lock.
func (p *PrefixIndex) locate(phrase string) nodeID {
	current := rootID
	rest := phrase

	for len(rest) > 0 {
		childID, ok := p.nodes[current].children[rest[0]]
		if !ok {
			leaf := p.newNode(rest)
			p.attach(current, leaf)
			return leaf
		}

		label := p.nodes[childID].label
		common := commonPrefixLength(label, rest)
		if common < len(label) {
			p.split(childID, common)
		}

		current = childID
		rest = rest[common:]
	}
	return current
}

// find is the read-only counterpart of locate: it reports the node that
// phrase ends on exactly, without creating or splitting anything.
func (p *PrefixIndex) find(phrase string) (nodeID, bool) {
	current := rootID
	rest := phrase

	for len(rest) > 0 {
		childID, ok := p.nodes[current].children[rest[0]]
		if !ok {
			return 0, false
		}

		label := p.nodes[childID].label
		if !strings.HasPrefix(rest, label) {
			return 0, false
		}

		current = childID
		rest = rest[len(label):]
	}
	return current, true
}

// descend matches prefix against the tree and returns the node under which
// every completion lives together with that node's full phrase. The prefix may
// end in the middle of an edge, in which case the whole edge label is part of base.
func (p *PrefixIndex) descend(prefix string) (nodeID, string, bool) {
	current := rootID
	rest := prefix
	var base strings.Builder

	for len(rest) > 0 {
		childID, ok := p.nodes[current].children[rest[0]]
		if !ok {
			return 0, "", false
		}

		label := p.nodes[childID].label
		common := commonPrefixLength(label, rest)
		if common < len(rest) && common < len(label) {
			return 0, "", false
		}

		base.WriteString(label)
		current = childID
		rest = rest[common:]
	}
	return current, base.String(), true
}

type collectFrame struct {
	id     nodeID
	phrase string
}

// collect gathers every complete phrase in the subtree rooted at start.
func (p *PrefixIndex) collect(ctx context.Context, start nodeID, base string) ([]model.Suggestion, error) {
	var results []model.Suggestion
	stack := []collectFrame{{id: start, phrase: base}}
	visited := 0

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		visited++
		if visited%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		node := &p.nodes[frame.id]
		if node.count > 0 && frame.phrase != "" {
			results = append(results, model.Suggestion{Phrase: frame.phrase, Count: node.count})
		}
		for _, childID := range node.children {
			stack = append(stack, collectFrame{id: childID, phrase: frame.phrase + p.nodes[childID].label})
		}
	}

	if results == nil {
		results = []model.Suggestion{}
	}
	return results, nil
}

// split shortens the edge of id to its first at bytes. The remainder of the
// label, the count and all children move to a new tail node which becomes the
// only child of id.
func (p *PrefixIndex) split(id nodeID, at int) {
	label := p.nodes[id].label
	tail := p.newNode(label[at:])

	p.nodes[tail].count = p.nodes[id].count
	p.nodes[tail].children = p.nodes[id].children

	p.nodes[id].label = label[:at]
	p.nodes[id].count = 0
	p.nodes[id].children = map[byte]nodeID{label[at]: tail}
}

func (p *PrefixIndex) newNode(label string) nodeID {
	p.nodes = append(p.nodes, trieNode{label: label})
	return nodeID(len(p.nodes) - 1)
}

func (p *PrefixIndex) attach(parent, child nodeID) {
	if p.nodes[parent].children == nil {
		p.nodes[parent].children = make(map[byte]nodeID)
	}
	p.nodes[parent].children[p.nodes[child].label[0]] = child
}

// commonPrefixLength compares byte by byte, with no Unicode normalisation.
func commonPrefixLength(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func compareSuggestions(a, b model.Suggestion) int {
	if a.Count != b.Count {
		if a.Count > b.Count {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Phrase, b.Phrase)
}
