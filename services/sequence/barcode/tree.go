// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package barcode

// node is one run in the AVL tree, augmented with subtree aggregates.
type node struct {
	color  Color
	length int

	height int
	size   int
	runs   int
	counts [MaxColors]int

	left, right *node
}

func newNode(color Color, length int) *node {
	n := &node{color: color, length: length}
	update(n)
	return n
}

func height(n *node) int {
	if n == nil {
		return 0
	}
	return n.height
}

func size(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func count(n *node, c Color) int {
	if n == nil {
		return 0
	}
	return n.counts[c]
}

// update recomputes n's aggregates from its children.
func update(n *node) {
	n.height = 1 + max(height(n.left), height(n.right))
	n.size = size(n.left) + n.length + size(n.right)
	n.runs = 1
	n.counts = [MaxColors]int{}
	if n.left != nil {
		n.runs += n.left.runs
		for c := range n.counts {
			n.counts[c] += n.left.counts[c]
		}
	}
	if n.right != nil {
		n.runs += n.right.runs
		for c := range n.counts {
			n.counts[c] += n.right.counts[c]
		}
	}
	n.counts[n.color] += n.length
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	update(n)
	r.left = n
	update(r)
	return r
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	update(n)
	l.right = n
	update(l)
	return l
}

// balance restores the AVL property at n, assuming both subtrees are valid
// and their heights differ by at most two.
func balance(n *node) *node {
	update(n)
	bf := height(n.left) - height(n.right)
	switch {
	case bf > 1:
		if height(n.left.left) < height(n.left.right) {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	case bf < -1:
		if height(n.right.right) < height(n.right.left) {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

// join returns the tree l ++ k ++ r. k must be detached.
func join(l, k, r *node) *node {
	switch {
	case height(l) > height(r)+1:
		return joinRight(l, k, r)
	case height(r) > height(l)+1:
		return joinLeft(l, k, r)
	}
	k.left, k.right = l, r
	update(k)
	return k
}

func joinRight(l, k, r *node) *node {
	if height(l.right) <= height(r)+1 {
		k.left, k.right = l.right, r
		update(k)
		l.right = k
		return balance(l)
	}
	l.right = joinRight(l.right, k, r)
	return balance(l)
}

func joinLeft(l, k, r *node) *node {
	if height(r.left) <= height(l)+1 {
		k.left, k.right = l, r.left
		update(k)
		r.left = k
		return balance(r)
	}
	r.left = joinLeft(l, k, r.left)
	return balance(r)
}

// split returns trees holding the first pos cells of t and the rest.
// A run straddling pos is cut in two.
func split(t *node, pos int) (*node, *node) {
	if t == nil {
		return nil, nil
	}
	left, right := t.left, t.right
	ls := size(left)

	switch {
	case pos <= ls:
		if pos == ls {
			t.left, t.right = nil, nil
			return left, join(nil, t, right)
		}
		ll, lr := split(left, pos)
		t.left, t.right = nil, nil
		return ll, join(lr, t, right)

	case pos >= ls+t.length:
		rl, rr := split(right, pos-ls-t.length)
		t.left, t.right = nil, nil
		return join(left, t, rl), rr
	}

	head := newNode(t.color, pos-ls)
	tail := newNode(t.color, ls+t.length-pos)
	return join(left, head, nil), join(nil, tail, right)
}

// removeMin detaches the first run of t.
func removeMin(t *node) (rest, first *node) {
	if t.left == nil {
		rest = t.right
		t.right = nil
		update(t)
		return rest, t
	}
	t.left, first = removeMin(t.left)
	return balance(t), first
}

// removeMax detaches the last run of t.
func removeMax(t *node) (rest, last *node) {
	if t.right == nil {
		rest = t.left
		t.left = nil
		update(t)
		return rest, t
	}
	t.right, last = removeMax(t.right)
	return balance(t), last
}

// concat returns l ++ r, merging the boundary runs when they share a color.
func concat(l, r *node) *node {
	if l == nil {
		return r
	}
	if r == nil {
		return l
	}
	l, last := removeMax(l)
	if first := leftmost(r); first.color == last.color {
		var head *node
		r, head = removeMin(r)
		last.length += head.length
	}
	return join(l, last, r)
}

func leftmost(n *node) *node {
	for n.left != nil {
		n = n.left
	}
	return n
}
