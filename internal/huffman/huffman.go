// Package huffman implements a canonical Huffman codec, used both over
// raw bytes and over an arbitrary ID alphabet. The wire shape is a
// delta-symbol-encoded frequency table followed by an MSB-first
// bitstream with a lastbits trailer; the tree itself is built with
// container/heap, the idiomatic way to build a priority queue in Go.
package huffman

import (
	"container/heap"
	"sort"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
)

// SymFreq is a (symbol, frequency) pair for symbols with non-zero count.
type SymFreq struct {
	Symbol uint32
	Freq   int
}

// Encoded is a symbol stream after Huffman coding.
type Encoded struct {
	FreqUsed  []SymFreq // sorted ascending by symbol
	LastBits  int       // 0 when N==0, else 1..8
	Bitstream []byte
	N         int
}

// dummySymbol is the sentinel leaf added when an alphabet has exactly one
// real symbol, so the Huffman tree always has two leaves.
const dummySymbol = ^uint32(0)

type treeNode struct {
	freq        int
	order       int
	symbol      uint32
	isLeaf      bool
	left, right *treeNode
}

type nodeHeap []*treeNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].freq != h[j].freq {
		return h[i].freq < h[j].freq
	}
	return h[i].order < h[j].order
}
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(*treeNode)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// buildLengths computes canonical Huffman code lengths for freqPairs
// (sorted ascending by symbol). Both Encode and Decode call this so they
// derive identical lengths from the same header data.
func buildLengths(freqPairs []SymFreq) map[uint32]int {
	if len(freqPairs) == 0 {
		return nil
	}
	h := &nodeHeap{}
	heap.Init(h)
	order := 0
	for _, p := range freqPairs {
		heap.Push(h, &treeNode{freq: p.Freq, order: order, symbol: p.Symbol, isLeaf: true})
		order++
	}
	if len(freqPairs) == 1 {
		heap.Push(h, &treeNode{freq: 0, order: order, symbol: dummySymbol, isLeaf: true})
		order++
	}
	for h.Len() > 1 {
		a := heap.Pop(h).(*treeNode)
		b := heap.Pop(h).(*treeNode)
		heap.Push(h, &treeNode{freq: a.freq + b.freq, order: order, left: a, right: b})
		order++
	}
	root := heap.Pop(h).(*treeNode)

	lengths := make(map[uint32]int, len(freqPairs))
	var walk func(n *treeNode, depth int)
	walk = func(n *treeNode, depth int) {
		if n.isLeaf {
			if depth == 0 {
				depth = 1 // single combined leaf edge case, shouldn't occur given dummy padding
			}
			if n.symbol != dummySymbol {
				lengths[n.symbol] = depth
			}
			return
		}
		walk(n.left, depth+1)
		walk(n.right, depth+1)
	}
	walk(root, 0)
	return lengths
}

type code struct {
	bits   uint64
	length int
}

func canonicalCodes(lengths map[uint32]int) map[uint32]code {
	type sl struct {
		symbol uint32
		length int
	}
	syms := make([]sl, 0, len(lengths))
	for s, l := range lengths {
		syms = append(syms, sl{s, l})
	}
	sort.Slice(syms, func(i, j int) bool {
		if syms[i].length != syms[j].length {
			return syms[i].length < syms[j].length
		}
		return syms[i].symbol < syms[j].symbol
	})
	codes := make(map[uint32]code, len(syms))
	var c uint64
	prevLen := 0
	if len(syms) > 0 {
		prevLen = syms[0].length
	}
	for i, s := range syms {
		if i > 0 && s.length > prevLen {
			c <<= uint(s.length - prevLen)
		}
		codes[s.symbol] = code{bits: c, length: s.length}
		c++
		prevLen = s.length
	}
	return codes
}

type bitWriter struct {
	out  []byte
	cur  byte
	nbit int
}

func (w *bitWriter) writeBits(bits uint64, length int) {
	for i := length - 1; i >= 0; i-- {
		bit := byte((bits >> uint(i)) & 1)
		w.cur |= bit << uint(7-w.nbit)
		w.nbit++
		if w.nbit == 8 {
			w.out = append(w.out, w.cur)
			w.cur = 0
			w.nbit = 0
		}
	}
}

func (w *bitWriter) finish() ([]byte, int) {
	if w.nbit == 0 {
		if len(w.out) == 0 {
			return w.out, 0
		}
		return w.out, 8
	}
	lastbits := w.nbit
	w.out = append(w.out, w.cur)
	return w.out, lastbits
}

type bitReader struct {
	data     []byte
	totalBit int
	pos      int
}

func newBitReader(data []byte, lastbits int) *bitReader {
	total := 0
	if len(data) > 0 {
		total = (len(data)-1)*8 + lastbits
	}
	return &bitReader{data: data, totalBit: total}
}

func (r *bitReader) readBit() (byte, bool) {
	if r.pos >= r.totalBit {
		return 0, false
	}
	byteIdx := r.pos / 8
	bitIdx := 7 - (r.pos % 8)
	r.pos++
	return (r.data[byteIdx] >> uint(bitIdx)) & 1, true
}

// Encode Huffman-codes symbols. It takes no alphabet size and does not
// range-check the symbols.
func Encode(symbols []uint32) (Encoded, error) {
	if len(symbols) == 0 {
		return Encoded{}, nil
	}
	freq := make(map[uint32]int)
	for _, s := range symbols {
		freq[s]++
	}
	pairs := make([]SymFreq, 0, len(freq))
	for s, f := range freq {
		pairs = append(pairs, SymFreq{Symbol: s, Freq: f})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Symbol < pairs[j].Symbol })

	lengths := buildLengths(pairs)
	codes := canonicalCodes(lengths)

	bw := &bitWriter{}
	for _, s := range symbols {
		c, ok := codes[s]
		if !ok {
			return Encoded{}, gccerr.Newf(gccerr.CorruptPayload, "huffman: symbol %d has no code", s)
		}
		bw.writeBits(c.bits, c.length)
	}
	bitstream, lastbits := bw.finish()
	return Encoded{FreqUsed: pairs, LastBits: lastbits, Bitstream: bitstream, N: len(symbols)}, nil
}

// Decode reverses Encode, stopping after exactly enc.N symbols.
func Decode(enc Encoded) ([]uint32, error) {
	if enc.N == 0 {
		return nil, nil
	}
	if len(enc.FreqUsed) == 0 {
		return nil, gccerr.New(gccerr.CorruptPayload, "huffman: empty frequency table for non-empty stream")
	}
	lengths := buildLengths(enc.FreqUsed)
	codes := canonicalCodes(lengths)

	type trieNode struct {
		symbol      uint32
		isLeaf      bool
		zero, one   *trieNode
	}
	root := &trieNode{}
	for sym, c := range codes {
		n := root
		for i := c.length - 1; i >= 0; i-- {
			bit := (c.bits >> uint(i)) & 1
			var next **trieNode
			if bit == 0 {
				next = &n.zero
			} else {
				next = &n.one
			}
			if *next == nil {
				*next = &trieNode{}
			}
			n = *next
		}
		n.isLeaf = true
		n.symbol = sym
	}

	br := newBitReader(enc.Bitstream, enc.LastBits)
	out := make([]uint32, 0, enc.N)
	for len(out) < enc.N {
		n := root
		for !n.isLeaf {
			bit, ok := br.readBit()
			if !ok {
				return nil, gccerr.New(gccerr.CorruptPayload, "huffman: bitstream exhausted before N symbols")
			}
			if bit == 0 {
				if n.zero == nil {
					return nil, gccerr.New(gccerr.CorruptPayload, "huffman: invalid code")
				}
				n = n.zero
			} else {
				if n.one == nil {
					return nil, gccerr.New(gccerr.CorruptPayload, "huffman: invalid code")
				}
				n = n.one
			}
		}
		out = append(out, n.symbol)
	}
	return out, nil
}
