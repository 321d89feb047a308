package bengine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlockData is the payload of one placed block. Namespace, Conditional and
// Vars only matter to quiz-capable pages; plain content pages carry just
// Content.
type BlockData struct {
	Content     string `json:"content"`
	Namespace   string `json:"namespace,omitempty"`
	Conditional string `json:"conditional,omitempty"`
	Vars        string `json:"vars,omitempty"`
}

// Block is one placed content unit. Key is a stable handle that survives
// renumbering; position is not part of the block, it is where the list
// keeps it.
type Block struct {
	Key  string
	Type string
	Data BlockData
}

// NewBlock creates a block with a fresh handle.
func NewBlock(btype string, data BlockData) *Block {
	return &Block{Key: uuid.NewString(), Type: btype, Data: data}
}

// BlockList is the ordered sequence of placed blocks. All public positions
// are 1-based and dense: after any mutation the blocks occupy positions
// 1..Count() with no gaps. Rendering is a projection of this list, never
// the other way around.
type BlockList struct {
	mu     sync.Mutex
	limit  int
	blocks []*Block
}

// NewBlockList creates an empty list with the given block ceiling.
func NewBlockList(limit int) *BlockList {
	return &BlockList{limit: limit}
}

// Count returns the number of placed blocks.
func (l *BlockList) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}

// Get returns the block at a 1-based position.
func (l *BlockList) Get(pos int) (*Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos < 1 || pos > len(l.blocks) {
		return nil, false
	}
	return l.blocks[pos-1], true
}

// InsertAt places b at position pos (1..Count()+1), shifting later blocks
// up. Exceeding the block ceiling returns a *LimitError and leaves the
// list untouched.
func (l *BlockList) InsertAt(pos int, b *Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) >= l.limit {
		return &LimitError{Resource: "blocks", Limit: int64(l.limit), Actual: int64(len(l.blocks) + 1)}
	}
	if pos < 1 || pos > len(l.blocks)+1 {
		return fmt.Errorf("insert position %d out of range 1..%d", pos, len(l.blocks)+1)
	}
	l.blocks = append(l.blocks, nil)
	copy(l.blocks[pos:], l.blocks[pos-1:])
	l.blocks[pos-1] = b
	return nil
}

// DeleteAt removes the block at a 1-based position, closing the gap, and
// returns the removed block.
func (l *BlockList) DeleteAt(pos int) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos < 1 || pos > len(l.blocks) {
		return nil, fmt.Errorf("delete position %d out of range 1..%d", pos, len(l.blocks))
	}
	b := l.blocks[pos-1]
	l.blocks = append(l.blocks[:pos-1], l.blocks[pos:]...)
	return b, nil
}

// Blocks returns a snapshot of the list in order.
func (l *BlockList) Blocks() []*Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Reset replaces the whole list. Used by revert and import.
func (l *BlockList) Reset(blocks []*Block) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks = append(l.blocks[:0:0], blocks...)
}

// PageData is the flat [type, payload, type, payload, ...] encoding used at
// every system boundary. Even indexes hold type strings, odd indexes hold
// BlockData, and the length is always even.
type PageData []interface{}

// PageData flattens the list into the boundary encoding.
func (l *BlockList) PageData() PageData {
	l.mu.Lock()
	defer l.mu.Unlock()
	pd := make(PageData, 0, len(l.blocks)*2)
	for _, b := range l.blocks {
		pd = append(pd, b.Type, b.Data)
	}
	return pd
}

// Split decodes page data into order-correlated type and payload slices,
// validating the even-length invariant.
func (pd PageData) Split() ([]string, []BlockData, error) {
	if len(pd)%2 != 0 {
		return nil, nil, fmt.Errorf("page data has odd length %d", len(pd))
	}
	types := make([]string, 0, len(pd)/2)
	content := make([]BlockData, 0, len(pd)/2)
	for i := 0; i < len(pd); i += 2 {
		t, ok := pd[i].(string)
		if !ok {
			return nil, nil, fmt.Errorf("page data index %d: expected type string, got %T", i, pd[i])
		}
		d, ok := pd[i+1].(BlockData)
		if !ok {
			return nil, nil, fmt.Errorf("page data index %d: expected block payload, got %T", i+1, pd[i+1])
		}
		types = append(types, t)
		content = append(content, d)
	}
	return types, content, nil
}

// JoinPageData builds page data from the parallel wire arrays.
func JoinPageData(types []string, content []BlockData) (PageData, error) {
	if len(types) != len(content) {
		return nil, fmt.Errorf("types and content lengths differ: %d vs %d", len(types), len(content))
	}
	pd := make(PageData, 0, len(types)*2)
	for i := range types {
		pd = append(pd, types[i], content[i])
	}
	return pd, nil
}

// BlocksFromPageData materializes list blocks from page data.
func BlocksFromPageData(pd PageData) ([]*Block, error) {
	types, content, err := pd.Split()
	if err != nil {
		return nil, err
	}
	blocks := make([]*Block, 0, len(types))
	for i := range types {
		blocks = append(blocks, NewBlock(types[i], content[i]))
	}
	return blocks, nil
}

// ConvertNjn turns a parsed engine file into page data. Each block whose
// namespace is referenced by @@namespace.key@@ tokens anywhere in the
// document gets those keys recorded newline-joined in its Vars field.
func ConvertNjn(doc *NjnDocument) PageData {
	needed := make(map[string]map[string]struct{})
	for _, name := range doc.Order {
		for _, ref := range ScanVars(doc.Blocks[name].Content) {
			keys, ok := needed[ref.Namespace]
			if !ok {
				keys = make(map[string]struct{})
				needed[ref.Namespace] = keys
			}
			keys[ref.Key] = struct{}{}
		}
	}

	pd := make(PageData, 0, len(doc.Order)*2)
	for _, name := range doc.Order {
		blk := doc.Blocks[name]
		data := BlockData{
			Content:     blk.Content,
			Namespace:   name,
			Conditional: blk.Conditional,
		}
		if keys, ok := needed[name]; ok {
			data.Vars = joinSortedKeys(keys)
		}
		pd = append(pd, blk.Type, data)
	}
	return pd
}

func joinSortedKeys(keys map[string]struct{}) string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	// deterministic order keeps serialization stable across runs
	sort.Strings(out)
	return strings.Join(out, "\n")
}
