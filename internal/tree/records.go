package tree

import "fmt"

// Record is the flat form of a node used for persistence
type Record struct {
	ID       string
	ParentID string
	Name     string
	Kind     Kind
	Meta     Metadata
}

// Records flattens the tree, excluding the root, with every parent before its children
func (t *Tree) Records() []Record {
	records := make([]Record, 0, len(t.nodes)-1)
	t.Walk(func(_ string, n *Node) bool {
		if n.ID != RootID {
			records = append(records, Record{ID: n.ID, ParentID: n.ParentID, Name: n.Name, Kind: n.Kind, Meta: n.Meta})
		}
		return true
	})
	return records
}

// FromRecords rebuilds a tree from records in any order. Records that cannot
// be attached to the root are reported as an error together with the partial tree.
func FromRecords(records []Record) (*Tree, error) {
	t := New()
	byParent := make(map[string][]Record, len(records))
	for _, r := range records {
		byParent[r.ParentID] = append(byParent[r.ParentID], r)
	}

	queue := []string{RootID}
	attached := 0
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]
		for _, r := range byParent[parentID] {
			if _, err := t.add(r.ParentID, r.ID, r.Name, r.Kind, r.Meta); err != nil {
				continue
			}
			attached++
			if r.Kind == KindFolder {
				queue = append(queue, r.ID)
			}
		}
	}

	if attached != len(records) {
		return t, fmt.Errorf("%d of %d cached entries are not reachable from the root", len(records)-attached, len(records))
	}
	return t, nil
}
