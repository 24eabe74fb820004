// Package views holds pure transforms from flat authoritative rows to the
// shapes the UI renders: comment trees, chat digests, participant identities.
package views

import "quad/internal/models"

// CommentNode is one node of the reconstructed comment tree. Children follow
// input order; callers pre-sort the flat list by CreatedAt ascending (ties by
// id) for chronological display.
type CommentNode struct {
	Comment  models.Comment
	Children []*CommentNode
}

// BuildCommentTree reconstructs the nested comment tree from a flat list.
// Two passes: the first indexes every visible comment by id, the second links
// children to parents. A comment whose parent is missing from the index
// (deleted, or filtered out) becomes a root so orphaned replies stay visible.
// Soft-deleted comments are excluded entirely.
func BuildCommentTree(flat []models.Comment) []*CommentNode {
	byID := make(map[string]*CommentNode, len(flat))
	order := make([]*CommentNode, 0, len(flat))
	for _, c := range flat {
		if c.IsDeleted {
			continue
		}
		node := &CommentNode{Comment: c}
		byID[c.ID] = node
		order = append(order, node)
	}

	roots := make([]*CommentNode, 0, len(order))
	for _, node := range order {
		parentID := node.Comment.ParentCommentID
		if parentID != nil {
			if parent, ok := byID[*parentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
