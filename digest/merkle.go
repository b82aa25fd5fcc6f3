package digest

import "encoding/hex"

// HashFunc hashes a byte string to a fixed-size digest.
type HashFunc func([]byte) []byte

// SHA256 is the HashFunc used for file chunk-info roots.
func SHA256(b []byte) []byte { return Bytes(b) }

// leafPrefix separates first-round (leaf) hashes from interior hashes.
const leafPrefix = 0x00

// MerkleTree builds a binary hash tree over leaves and returns every level
// concatenated: the leaves first, then each derived level, with the root as
// the last element.
//
// Adjacent elements are paired left to right; an odd last element is
// paired with itself. Pairs in the first round hash as fn(0x00||l||r),
// later rounds as fn(l||r). At least one round always runs, so a single
// leaf yields [leaf, fn(0x00||leaf||leaf)].
func MerkleTree(leaves [][]byte, fn HashFunc) ([][]byte, error) {
	if leaves == nil {
		return nil, ErrNilLeaves
	}
	if fn == nil {
		return nil, ErrNilHashFunc
	}
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	tree := make([][]byte, 0, 2*len(leaves)+1)
	level := make([][]byte, len(leaves))
	for i, l := range leaves {
		level[i] = append([]byte(nil), l...)
	}
	tree = append(tree, level...)

	first := true
	for first || len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			buf := make([]byte, 0, 1+len(left)+len(right))
			if first {
				buf = append(buf, leafPrefix)
			}
			buf = append(buf, left...)
			buf = append(buf, right...)
			next = append(next, fn(buf))
		}
		tree = append(tree, next...)
		level = next
		first = false
	}

	return tree, nil
}

// MerkleRoot returns the root of a tree produced by MerkleTree.
func MerkleRoot(tree [][]byte) []byte {
	if len(tree) == 0 {
		return nil
	}
	return tree[len(tree)-1]
}

// MerkleRootHex computes the SHA-256 Merkle root over hex chunk ids.
func MerkleRootHex(ids []string) (string, error) {
	leaves := make([][]byte, len(ids))
	for i, id := range ids {
		b, err := Decode(id)
		if err != nil {
			return "", err
		}
		leaves[i] = b
	}
	tree, err := MerkleTree(leaves, SHA256)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(MerkleRoot(tree)), nil
}
