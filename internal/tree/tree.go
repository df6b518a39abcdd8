// Package tree is the in-memory mirror of the remote folder hierarchy.
//
// Nodes live in an arena keyed by remote id. A node stores its parent as an
// id and its children as an id list owned by that parent, so there are no
// pointer cycles and lookup by id is a map access.
package tree

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dl-alexandre/gosync/internal/utils"
)

// RootID is the well-known id of the root folder
const RootID = utils.RootFolderID

// Kind distinguishes folders from files
type Kind int

const (
	KindFolder Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// Metadata holds the remote attributes of an entry; it is replaced wholesale on refresh
type Metadata struct {
	MimeType     string `json:"mimeType,omitempty"`
	Size         int64  `json:"size,omitempty"`
	MD5Checksum  string `json:"md5Checksum,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Trashed      bool   `json:"trashed,omitempty"`
}

// Node is one folder or file in the tree
type Node struct {
	ID       string
	Name     string
	ParentID string
	Kind     Kind
	Meta     Metadata

	children []string
}

// IsFolder reports whether the node can have children
func (n *Node) IsFolder() bool {
	return n.Kind == KindFolder
}

// Children returns a copy of the child ids
func (n *Node) Children() []string {
	out := make([]string, len(n.children))
	copy(out, n.children)
	return out
}

func (n *Node) clone() *Node {
	c := *n
	c.children = n.Children()
	return &c
}

// Tree is not safe for concurrent use; the engine guards it with its sync lock
// and hands readers a Snapshot.
type Tree struct {
	nodes map[string]*Node
}

// New returns a tree holding only the root folder
func New() *Tree {
	return &Tree{
		nodes: map[string]*Node{
			RootID: {ID: RootID, Kind: KindFolder},
		},
	}
}

// Root returns the root folder
func (t *Tree) Root() *Node {
	return t.nodes[RootID]
}

// Len returns the number of nodes including the root
func (t *Tree) Len() int {
	return len(t.nodes)
}

// AddFolder adds a folder under parentID. It is a no-op if id already exists.
func (t *Tree) AddFolder(parentID, id, name string, meta Metadata) (*Node, error) {
	return t.add(parentID, id, name, KindFolder, meta)
}

// AddFile adds a file under parentID. It is a no-op if id already exists.
func (t *Tree) AddFile(parentID, id, name string, meta Metadata) (*Node, error) {
	return t.add(parentID, id, name, KindFile, meta)
}

func (t *Tree) add(parentID, id, name string, kind Kind, meta Metadata) (*Node, error) {
	if existing, ok := t.nodes[id]; ok {
		return existing, nil
	}
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, utils.NewCLIError(utils.ErrCodeParentNotFound, fmt.Sprintf("parent %s not found", parentID)).
			WithContext("id", id).
			WithContext("parentId", parentID).
			Err()
	}
	if !parent.IsFolder() {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, fmt.Sprintf("parent %s is not a folder", parentID)).
			WithContext("id", id).
			Err()
	}

	node := &Node{ID: id, Name: name, ParentID: parentID, Kind: kind, Meta: meta}
	t.nodes[id] = node
	parent.children = append(parent.children, id)
	return node, nil
}

// UpdateMetadata replaces the metadata of id
func (t *Tree) UpdateMetadata(id string, meta Metadata) bool {
	node, ok := t.nodes[id]
	if !ok {
		return false
	}
	node.Meta = meta
	return true
}

// FindByID returns the node with id or nil
func (t *Tree) FindByID(id string) *Node {
	return t.nodes[id]
}

// FindByPath walks from the root one component at a time. The empty path is
// the root. When siblings share a name the first inserted one wins.
func (t *Tree) FindByPath(p string) *Node {
	p = strings.Trim(path.Clean("/"+p), "/")
	node := t.Root()
	if p == "" {
		return node
	}
	for _, part := range strings.Split(p, "/") {
		node = t.childNamed(node, part)
		if node == nil {
			return nil
		}
	}
	return node
}

// ChildNamed returns the child of parentID called name, or nil
func (t *Tree) ChildNamed(parentID, name string) *Node {
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil
	}
	return t.childNamed(parent, name)
}

func (t *Tree) childNamed(parent *Node, name string) *Node {
	for _, id := range parent.children {
		if child := t.nodes[id]; child != nil && child.Name == name {
			return child
		}
	}
	return nil
}

// Path returns the slash separated path of id built from ancestor names.
// The root path is the empty string.
func (t *Tree) Path(id string) (string, bool) {
	node, ok := t.nodes[id]
	if !ok {
		return "", false
	}
	var parts []string
	for node.ID != RootID {
		parts = append(parts, node.Name)
		parent, ok := t.nodes[node.ParentID]
		if !ok {
			return "", false
		}
		node = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/"), true
}

// Rename changes the name of id
func (t *Tree) Rename(id, name string) error {
	node, ok := t.nodes[id]
	if !ok || id == RootID {
		return notFound(id)
	}
	node.Name = name
	return nil
}

// Move reparents id under newParentID. Moving a folder into its own subtree is rejected.
func (t *Tree) Move(id, newParentID string) error {
	node, ok := t.nodes[id]
	if !ok || id == RootID {
		return notFound(id)
	}
	parent, ok := t.nodes[newParentID]
	if !ok {
		return utils.NewCLIError(utils.ErrCodeParentNotFound, fmt.Sprintf("parent %s not found", newParentID)).Err()
	}
	if !parent.IsFolder() {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, fmt.Sprintf("parent %s is not a folder", newParentID)).Err()
	}
	for cur := parent; cur != nil; cur = t.nodes[cur.ParentID] {
		if cur.ID == id {
			return utils.NewCLIError(utils.ErrCodeInvalidArgument, "cannot move a folder into its own subtree").
				WithContext("id", id).
				WithContext("parentId", newParentID).
				Err()
		}
		if cur.ID == RootID {
			break
		}
	}
	if node.ParentID == newParentID {
		return nil
	}

	t.detach(node)
	node.ParentID = newParentID
	parent.children = append(parent.children, id)
	return nil
}

// Remove deletes a single file or an empty folder
func (t *Tree) Remove(id string) error {
	node, ok := t.nodes[id]
	if !ok || id == RootID {
		return notFound(id)
	}
	if len(node.children) > 0 {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "folder is not empty").WithContext("id", id).Err()
	}
	t.detach(node)
	delete(t.nodes, id)
	return nil
}

// DeleteFolder removes id and its whole subtree, leaf first.
//
// The deletion order is computed up front as a post-order traversal, so no
// child list is mutated while it is being walked. onLeafDeleted runs once per
// descendant, before that descendant is detached; its errors and panics are
// collected and never stop the deletion. It returns the number of removed nodes.
func (t *Tree) DeleteFolder(id string, onLeafDeleted func(*Node) error) (int, error) {
	if id == RootID {
		return 0, utils.NewCLIError(utils.ErrCodeInvalidArgument, "cannot delete the root folder").Err()
	}
	if _, ok := t.nodes[id]; !ok {
		return 0, notFound(id)
	}

	order := t.postOrder(id)
	var errs []error
	for _, nodeID := range order {
		node := t.nodes[nodeID]
		if nodeID != id && onLeafDeleted != nil {
			if err := invoke(onLeafDeleted, node); err != nil {
				errs = append(errs, err)
			}
		}
		t.detach(node)
		delete(t.nodes, nodeID)
	}
	return len(order), errors.Join(errs...)
}

func invoke(fn func(*Node) error, node *Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delete callback for %s panicked: %v", node.ID, r)
		}
	}()
	return fn(node)
}

// postOrder lists the subtree of id with every child before its parent
func (t *Tree) postOrder(id string) []string {
	type frame struct {
		id       string
		expanded bool
	}
	var order []string
	stack := []frame{{id: id}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.expanded {
			order = append(order, top.id)
			continue
		}
		stack = append(stack, frame{id: top.id, expanded: true})
		node := t.nodes[top.id]
		for i := len(node.children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: node.children[i]})
		}
	}
	return order
}

func (t *Tree) detach(node *Node) {
	parent, ok := t.nodes[node.ParentID]
	if !ok {
		return
	}
	kept := parent.children[:0]
	for _, childID := range parent.children {
		if childID != node.ID {
			kept = append(kept, childID)
		}
	}
	parent.children = kept
}

// Walk visits every node depth first, parents before children, with its path.
// Returning false from fn skips the node's subtree.
func (t *Tree) Walk(fn func(p string, n *Node) bool) {
	var visit func(p string, n *Node)
	visit = func(p string, n *Node) {
		if !fn(p, n) {
			return
		}
		for _, childID := range n.children {
			child := t.nodes[childID]
			if child == nil {
				continue
			}
			visit(path.Join(p, child.Name), child)
		}
	}
	visit("", t.Root())
}

// Snapshot returns an independent deep copy for readers outside the sync lock
func (t *Tree) Snapshot() *Tree {
	cp := &Tree{nodes: make(map[string]*Node, len(t.nodes))}
	for id, node := range t.nodes {
		cp.nodes[id] = node.clone()
	}
	return cp
}

func notFound(id string) error {
	return utils.NewCLIError(utils.ErrCodeFileNotFound, fmt.Sprintf("entry %s not found", id)).
		WithContext("id", id).
		Err()
}
